package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/clock"
	"github.com/sdpower/ccmonitor-go/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueSource struct {
	mu      sync.Mutex
	batches [][]types.UsageEvent
	err     error
	drains  int
}

func (s *queueSource) push(events ...types.UsageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
}

func (s *queueSource) Drain(context.Context) ([]types.UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drains++
	if s.err != nil {
		return nil, s.err
	}
	var out []types.UsageEvent
	for _, b := range s.batches {
		out = append(out, b...)
	}
	s.batches = nil
	return out, nil
}

func TestRunOnceDrainsAndTicks(t *testing.T) {
	e, cell, _ := newEngine(t, "pro")
	src := &queueSource{}
	clk := clock.NewFake(t0.Add(time.Hour))
	r := NewRunner(e, src, RunnerOptions{Clock: clk, Logger: zerolog.Nop()})

	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, types.ErrNoActiveSession)

	src.push(ev(0, 3, 300, 0.3))
	snap, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, snap.Messages.Used)
	assert.Equal(t, t0.Add(time.Hour), snap.GeneratedAt)
	assert.Same(t, snap, cell.Load())
}

func TestRunOnceSurvivesDrainFailure(t *testing.T) {
	e, _, _ := newEngine(t, "pro")
	e.Ingest([]types.UsageEvent{ev(0, 1, 10, 0)})
	src := &queueSource{err: errors.New("feed unreadable")}
	r := NewRunner(e, src, RunnerOptions{Clock: clock.NewFake(t0.Add(time.Minute)), Logger: zerolog.Nop()})

	snap, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Messages.Used)
}

func TestRunTicksOnChangesUntilCancelled(t *testing.T) {
	e, cell, _ := newEngine(t, "pro")
	src := &queueSource{}
	changes := make(chan struct{}, 1)
	r := NewRunner(e, src, RunnerOptions{
		Interval: time.Hour,
		Changes:  changes,
		Clock:    clock.NewFake(t0.Add(time.Minute)),
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	src.push(ev(0, 7, 700, 0.7))
	changes <- struct{}{}

	require.Eventually(t, func() bool {
		snap := cell.Load()
		return snap != nil && snap.Messages.Used == 7
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
}

func TestRunToleratesClosedChangesChannel(t *testing.T) {
	e, _, _ := newEngine(t, "pro")
	changes := make(chan struct{})
	close(changes)
	r := NewRunner(e, &queueSource{}, RunnerOptions{
		Interval: time.Hour,
		Changes:  changes,
		Clock:    clock.NewFake(t0),
		Logger:   zerolog.Nop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, r.Run(ctx))
}

func TestNewRunnerDefaults(t *testing.T) {
	e, _, _ := newEngine(t, "pro")
	r := NewRunner(e, nil, RunnerOptions{})
	assert.Equal(t, DefaultRefreshInterval, r.opts.Interval)
	assert.IsType(t, clock.Real{}, r.opts.Clock)
}
