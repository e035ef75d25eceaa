package types

import (
	"time"
)

// SessionWindow represents a session window (typically a 5-hour billing period) with usage data
type SessionWindow struct {
	Start       time.Time `json:"start"`         // Window start time
	End         time.Time `json:"end"`           // Nominal end (start + window duration), exclusive
	LastEventAt time.Time `json:"last_event_at"` // Last activity in window
	Totals      Totals    `json:"totals"`        // Aggregated usage
	EventCount  int       `json:"event_count"`
	IsActive    bool      `json:"is_active"` // Whether this window is still accumulating
}

// Contains reports whether t falls within [Start, End).
func (w SessionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// PlanLimit is the per-window allowance for each metric.
// A zero field on a custom plan means the limit is unknown.
type PlanLimit struct {
	Messages int     `json:"messages"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// Value returns the limit for a single metric.
func (l PlanLimit) Value(m Metric) float64 {
	switch m {
	case MetricMessages:
		return float64(l.Messages)
	case MetricTokens:
		return float64(l.Tokens)
	case MetricCost:
		return l.Cost
	}
	return 0
}

// BurnRate represents trailing usage speed within the active window
type BurnRate struct {
	TokensPerMinute float64 `json:"tokens_per_minute"`
	// MessagesPerMinute is reserved and always zero.
	MessagesPerMinute int `json:"messages_per_minute"`
}

// ResetInfo describes when the active window resets.
type ResetInfo struct {
	Timestamp        time.Time `json:"timestamp"` // always UTC
	SecondsRemaining int64     `json:"seconds_remaining"`
	FormattedTime    string    `json:"formatted_time"`
}
