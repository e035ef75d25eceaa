package types

import "time"

// UsageMetric is one line of a snapshot: consumption against a limit.
// Percent is 0 whenever Limit is 0, which also covers "limit unknown".
type UsageMetric struct {
	Used    float64 `json:"used"`
	Limit   float64 `json:"limit"`
	Percent float64 `json:"percent"`
}

// Known reports whether the metric has a usable ceiling.
// Custom plans without closed history carry no limit.
func (m UsageMetric) Known() bool {
	return m.Limit > 0
}

// UsageSnapshot is an immutable, fully computed usage report.
// A published snapshot is never modified; the next tick replaces it.
type UsageSnapshot struct {
	Plan        string      `json:"plan"`
	Messages    UsageMetric `json:"messages"`
	Tokens      UsageMetric `json:"tokens"`
	Cost        UsageMetric `json:"cost"`
	Reset       ResetInfo   `json:"reset"`
	BurnRate    BurnRate    `json:"burn_rate"`
	WindowStart time.Time   `json:"window_start"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Metric returns the UsageMetric for m.
func (s *UsageSnapshot) Metric(m Metric) UsageMetric {
	switch m {
	case MetricMessages:
		return s.Messages
	case MetricTokens:
		return s.Tokens
	case MetricCost:
		return s.Cost
	}
	return UsageMetric{}
}
