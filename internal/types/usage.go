package types

import (
	"time"
)

// UsageEvent is one parsed usage record handed to the engine.
type UsageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Messages  int       `json:"messages"`
	Tokens    int       `json:"tokens"` // summed across input/output/cache categories
	Cost      float64   `json:"cost"`   // USD
}

// Totals is the running sum of a group of events.
type Totals struct {
	Messages int     `json:"messages"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// Add folds an event into the totals.
func (t *Totals) Add(ev UsageEvent) {
	t.Messages += ev.Messages
	t.Tokens += ev.Tokens
	t.Cost += ev.Cost
}

// Value returns the total for a single metric.
func (t Totals) Value(m Metric) float64 {
	switch m {
	case MetricMessages:
		return float64(t.Messages)
	case MetricTokens:
		return float64(t.Tokens)
	case MetricCost:
		return t.Cost
	}
	return 0
}

// Metric identifies one of the three accounted quantities.
type Metric int

const (
	MetricMessages Metric = iota
	MetricTokens
	MetricCost
)

// Metrics lists every metric in display order.
var Metrics = []Metric{MetricMessages, MetricTokens, MetricCost}

func (m Metric) String() string {
	switch m {
	case MetricMessages:
		return "messages"
	case MetricTokens:
		return "tokens"
	case MetricCost:
		return "cost"
	}
	return "unknown"
}

// TokenCounts represents token counts split by category, as found in raw feeds
type TokenCounts struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_tokens"`
	CacheReadInputTokens     int `json:"cache_read_tokens"`
}

// GetTotal calculates the total number of tokens from TokenCounts
func (tc TokenCounts) GetTotal() int {
	return tc.InputTokens + tc.OutputTokens + tc.CacheCreationInputTokens + tc.CacheReadInputTokens
}
