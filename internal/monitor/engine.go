// Package monitor runs the tick pipeline: ingest, window, estimate, publish.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/calculator"
	"github.com/sdpower/ccmonitor-go/internal/metrics"
	"github.com/sdpower/ccmonitor-go/internal/snapshot"
	"github.com/sdpower/ccmonitor-go/internal/store"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

// Sink receives every published snapshot.
type Sink interface {
	Consume(snap *types.UsageSnapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(snap *types.UsageSnapshot) error

func (f SinkFunc) Consume(snap *types.UsageSnapshot) error { return f(snap) }

// Archive persists closed windows.
type Archive interface {
	Save(ctx context.Context, w types.SessionWindow) error
}

type namedSink struct {
	name string
	sink Sink
}

// Options wires an Engine.
type Options struct {
	Plan       calculator.Plan
	Windower   calculator.WindowerOptions
	Location   *time.Location
	TimeFormat calculator.TimeFormat
	Cell       *snapshot.Cell
	Archive    Archive            // optional
	Metrics    *metrics.Collector // optional
	Retention  time.Duration      // 0 keeps every event
	Logger     zerolog.Logger
}

// Engine owns all mutable accounting state. It does no I/O of its own apart
// from the archive and sinks, and must be driven from a single goroutine.
type Engine struct {
	plan      calculator.Plan
	windower  *calculator.Windower
	events    *store.EventStore
	publisher *snapshot.Publisher
	projector calculator.ResetProjector
	archive   Archive
	metrics   *metrics.Collector
	retention time.Duration
	sinks     []namedSink
	closed    []types.SessionWindow
	logger    zerolog.Logger
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Plan == nil {
		return nil, fmt.Errorf("%w: plan is required", types.ErrInvalidConfig)
	}
	if opts.Cell == nil {
		return nil, fmt.Errorf("%w: snapshot cell is required", types.ErrInvalidConfig)
	}

	e := &Engine{
		plan:      opts.Plan,
		windower:  calculator.NewWindower(opts.Windower),
		events:    store.New(),
		publisher: snapshot.NewPublisher(opts.Cell),
		projector: calculator.NewResetProjector(opts.Location, opts.TimeFormat),
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		retention: opts.Retention,
		logger:    opts.Logger,
	}
	e.windower.OnClose(e.windowClosed)
	return e, nil
}

// Seed loads closed windows persisted by an earlier run.
func (e *Engine) Seed(history []types.SessionWindow) {
	e.windower.Seed(history)
}

// AddSink registers s under name; name labels sink error metrics.
func (e *Engine) AddSink(name string, s Sink) {
	e.sinks = append(e.sinks, namedSink{name: name, sink: s})
}

// State returns a copy of the windower state.
func (e *Engine) State() calculator.WindowerState {
	return e.windower.State()
}

// Ingest feeds events to the windower and returns how many were accepted.
// Malformed events are logged and counted, never fatal.
func (e *Engine) Ingest(events []types.UsageEvent) int {
	accepted := 0
	for _, ev := range events {
		ev.Timestamp = ev.Timestamp.UTC()
		state, err := e.windower.Ingest(ev)
		if err != nil {
			e.logger.Warn().Err(err).Time("timestamp", ev.Timestamp).Msg("usage event rejected")
			if e.metrics != nil {
				e.metrics.EventsRejected.Inc()
			}
			continue
		}
		// Events folded in from the out-of-order tolerance band count at the
		// window start so burn-rate ranges see them.
		if state.Active != nil && ev.Timestamp.Before(state.Active.Start) {
			ev.Timestamp = state.Active.Start
		}
		e.events.Append(ev)
		accepted++
	}
	if e.metrics != nil {
		e.metrics.EventsIngested.Add(float64(accepted))
	}
	return accepted
}

// Tick closes an expired window, recomputes limits, burn rate and reset,
// publishes a snapshot and notifies sinks. It returns types.ErrNoActiveSession
// when there is nothing to publish; the previously published snapshot, if
// any, stays in the cell.
func (e *Engine) Tick(ctx context.Context, now time.Time) (*types.UsageSnapshot, error) {
	now = now.UTC()
	e.windower.CloseExpired(now)
	e.flushClosed(ctx)

	if e.retention > 0 {
		if n := e.events.Prune(now.Add(-e.retention)); n > 0 {
			e.logger.Debug().Int("pruned", n).Msg("pruned expired events")
		}
	}

	state := e.windower.State()
	if !state.HasActive() {
		if e.metrics != nil {
			e.metrics.SnapshotsSuppressed.Inc()
		}
		return nil, types.ErrNoActiveSession
	}
	active := *state.Active

	snap, ok := e.publisher.Publish(snapshot.Inputs{
		Plan:     e.plan,
		State:    state,
		Limits:   calculator.EstimateLimits(e.plan, state.History),
		BurnRate: calculator.CalculateBurnRate(e.events.Range(active.Start, now), active.Start, now),
		Reset:    e.projector.Project(active, now),
	}, now)
	if !ok {
		return nil, types.ErrNoActiveSession
	}
	if e.metrics != nil {
		e.metrics.SnapshotsPublished.Inc()
	}

	e.logger.Debug().
		Time("window_start", active.Start).
		Float64("tokens", snap.Tokens.Used).
		Float64("tokens_percent", snap.Tokens.Percent).
		Int64("reset_in", snap.Reset.SecondsRemaining).
		Msg("snapshot published")

	e.notify(snap)
	return snap, nil
}

func (e *Engine) notify(snap *types.UsageSnapshot) {
	for _, s := range e.sinks {
		if err := s.sink.Consume(snap); err != nil {
			level := e.logger.Error()
			if errors.Is(err, types.ErrStateFileDisabled) {
				level = e.logger.Debug()
			}
			level.Err(err).Str("sink", s.name).Msg("snapshot sink failed")
			if e.metrics != nil {
				e.metrics.SinkErrors.WithLabelValues(s.name).Inc()
			}
		}
	}
}

func (e *Engine) windowClosed(w types.SessionWindow) {
	e.closed = append(e.closed, w)
	if e.metrics != nil {
		e.metrics.WindowsClosed.Inc()
	}
	e.logger.Info().
		Time("start", w.Start).
		Int("tokens", w.Totals.Tokens).
		Int("messages", w.Totals.Messages).
		Msg("session window closed")
}

// flushClosed archives windows closed since the last tick. Failed saves are
// retried on the next tick.
func (e *Engine) flushClosed(ctx context.Context) {
	if e.archive == nil {
		e.closed = nil
		return
	}
	pending := e.closed[:0]
	for _, w := range e.closed {
		if err := e.archive.Save(ctx, w); err != nil {
			e.logger.Error().Err(err).Time("start", w.Start).Msg("archive closed window")
			pending = append(pending, w)
		}
	}
	e.closed = pending
}
