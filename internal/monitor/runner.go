package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/clock"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

// DefaultRefreshInterval is how often the runner ticks without feed changes.
const DefaultRefreshInterval = 10 * time.Second

// Source yields events that arrived since the previous call.
type Source interface {
	Drain(ctx context.Context) ([]types.UsageEvent, error)
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Interval time.Duration
	Changes  <-chan struct{} // optional feed-change notifications
	Clock    clock.Clock
	Logger   zerolog.Logger
}

// Runner drives an Engine from a Source on a fixed interval and on feed
// changes. All engine calls happen on the Run goroutine.
type Runner struct {
	engine *Engine
	source Source
	opts   RunnerOptions
}

func NewRunner(engine *Engine, source Source, opts RunnerOptions) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultRefreshInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Runner{engine: engine, source: source, opts: opts}
}

// RunOnce drains the source, ingests what it returned and ticks the engine.
// A drain failure is logged; the tick still runs on the events already held.
func (r *Runner) RunOnce(ctx context.Context) (*types.UsageSnapshot, error) {
	if r.source != nil {
		events, err := r.source.Drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.opts.Logger.Warn().Err(err).Msg("drain event feed")
		}
		if len(events) > 0 {
			n := r.engine.Ingest(events)
			r.opts.Logger.Debug().Int("received", len(events)).Int("accepted", n).Msg("events ingested")
		}
	}
	return r.engine.Tick(ctx, r.opts.Clock.Now())
}

// Run ticks until ctx is done. It returns nil on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tick(ctx)
		case _, ok := <-r.opts.Changes:
			if !ok {
				r.opts.Changes = nil
				continue
			}
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	_, err := r.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, types.ErrNoActiveSession):
		r.opts.Logger.Debug().Msg("no active session, nothing published")
	case ctx.Err() != nil:
	default:
		r.opts.Logger.Error().Err(err).Msg("tick failed")
	}
}
