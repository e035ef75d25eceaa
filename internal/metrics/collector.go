// Package metrics exports snapshot values and engine counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

const namespace = "ccmonitor"

// Collector holds all Prometheus metrics for the monitor.
// It doubles as a snapshot sink: Consume copies each snapshot into gauges.
type Collector struct {
	// Snapshot metrics
	Used    *prometheus.GaugeVec
	Limit   *prometheus.GaugeVec
	Percent *prometheus.GaugeVec

	BurnRateTokens        prometheus.Gauge
	ResetSecondsRemaining prometheus.Gauge
	LastSnapshot          prometheus.Gauge

	// Engine metrics
	EventsIngested      prometheus.Counter
	EventsRejected      prometheus.Counter
	SnapshotsPublished  prometheus.Counter
	SnapshotsSuppressed prometheus.Counter
	WindowsClosed       prometheus.Counter
	SinkErrors          *prometheus.CounterVec
}

// NewWithRegistry creates a collector registered with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		Used: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "usage_used",
				Help:      "Consumption in the active session window",
			},
			[]string{"metric", "plan"},
		),
		Limit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "usage_limit",
				Help:      "Per-window limit, 0 when unknown",
			},
			[]string{"metric", "plan"},
		),
		Percent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "usage_percent",
				Help:      "Consumption as a percentage of the limit",
			},
			[]string{"metric", "plan"},
		),
		BurnRateTokens: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "burn_rate_tokens_per_minute",
				Help:      "Trailing token consumption rate",
			},
		),
		ResetSecondsRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "reset_seconds_remaining",
				Help:      "Seconds until the active window resets",
			},
		),
		LastSnapshot: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_snapshot_timestamp",
				Help:      "Unix timestamp of the last published snapshot",
			},
		),
		EventsIngested: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_ingested_total",
				Help:      "Total number of usage events aggregated",
			},
		),
		EventsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_rejected_total",
				Help:      "Total number of malformed usage events",
			},
		),
		SnapshotsPublished: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_published_total",
				Help:      "Total number of snapshots published",
			},
		),
		SnapshotsSuppressed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_suppressed_total",
				Help:      "Total number of ticks without an active session",
			},
		),
		WindowsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "windows_closed_total",
				Help:      "Total number of session windows closed",
			},
		),
		SinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Total number of failed snapshot deliveries",
			},
			[]string{"sink"},
		),
	}
}

// Consume records a published snapshot.
func (c *Collector) Consume(snap *types.UsageSnapshot) error {
	if snap == nil {
		return nil
	}
	for _, m := range types.Metrics {
		v := snap.Metric(m)
		c.Used.WithLabelValues(m.String(), snap.Plan).Set(v.Used)
		c.Limit.WithLabelValues(m.String(), snap.Plan).Set(v.Limit)
		c.Percent.WithLabelValues(m.String(), snap.Plan).Set(v.Percent)
	}
	c.BurnRateTokens.Set(snap.BurnRate.TokensPerMinute)
	c.ResetSecondsRemaining.Set(float64(snap.Reset.SecondsRemaining))
	c.LastSnapshot.Set(float64(snap.GeneratedAt.Unix()))
	return nil
}
