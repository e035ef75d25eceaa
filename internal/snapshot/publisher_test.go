package snapshot

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sdpower/ccmonitor-go/internal/calculator"
	"github.com/sdpower/ccmonitor-go/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC)

func activeState(messages, tokens int, cost float64) calculator.WindowerState {
	return calculator.WindowerState{
		Active: &types.SessionWindow{
			Start:    now.Add(-2 * time.Hour),
			End:      now.Add(3 * time.Hour),
			Totals:   types.Totals{Messages: messages, Tokens: tokens, Cost: cost},
			IsActive: true,
		},
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name        string
		used, limit float64
		want        float64
	}{
		{"pro messages", 140, 250, 56.0},
		{"zero limit", 500, 0, 0},
		{"zero both", 0, 0, 0},
		{"negative limit", 10, -1, 0},
		{"over limit", 300, 200, 150.0},
		{"infinite limit", 10, math.Inf(1), 0},
		{"zero usage", 0, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percent(tt.used, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.False(t, math.IsNaN(got))
			assert.False(t, math.IsInf(got, 0))
		})
	}
}

func TestBuildProPlan(t *testing.T) {
	plan := calculator.StandardPlan{Name: "pro"}
	reset := types.ResetInfo{Timestamp: now.Add(3 * time.Hour), SecondsRemaining: 10800, FormattedTime: "5:00 PM"}

	snap, ok := Build(Inputs{
		Plan:     plan,
		State:    activeState(140, 19352, 12.5),
		Limits:   calculator.EstimateLimits(plan, nil),
		BurnRate: types.BurnRate{TokensPerMinute: 161.27},
		Reset:    reset,
	}, now)
	require.True(t, ok)

	assert.Equal(t, "pro", snap.Plan)
	assert.Equal(t, 56.0, snap.Messages.Percent)
	assert.Equal(t, 140.0, snap.Messages.Used)
	assert.Equal(t, 250.0, snap.Messages.Limit)
	assert.InDelta(t, 49.9993, snap.Tokens.Percent, 0.001)
	assert.Equal(t, 25.0, snap.Cost.Percent)
	assert.Equal(t, reset, snap.Reset)
	assert.Equal(t, 161.27, snap.BurnRate.TokensPerMinute)
	assert.Equal(t, now.Add(-2*time.Hour), snap.WindowStart)
	assert.Equal(t, now, snap.GeneratedAt)
}

func TestBuildUnknownLimitsYieldZeroPercent(t *testing.T) {
	snap, ok := Build(Inputs{
		Plan:  calculator.CustomPlan{},
		State: activeState(10, 5000, 1.0),
	}, now)
	require.True(t, ok)

	for _, m := range types.Metrics {
		assert.Equal(t, 0.0, snap.Metric(m).Limit, m.String())
		assert.Equal(t, 0.0, snap.Metric(m).Percent, m.String())
		assert.False(t, snap.Metric(m).Known(), m.String())
	}
	assert.Equal(t, 5000.0, snap.Tokens.Used)
}

func TestPublishSuppressedWithoutActiveWindow(t *testing.T) {
	cell := NewCell()
	p := NewPublisher(cell)

	snap, ok := p.Publish(Inputs{}, now)
	assert.False(t, ok)
	assert.Nil(t, snap)
	assert.Nil(t, cell.Load())

	first, ok := p.Publish(Inputs{State: activeState(1, 1, 0)}, now)
	require.True(t, ok)

	_, ok = p.Publish(Inputs{}, now.Add(time.Minute))
	assert.False(t, ok)
	assert.Same(t, first, cell.Load(), "a suppressed publish keeps the previous snapshot")
}

func TestPublishIsAtomicForConcurrentReaders(t *testing.T) {
	cell := NewCell()
	p := NewPublisher(cell)
	plan := calculator.StandardPlan{Name: "max5"}
	limits := calculator.EstimateLimits(plan, nil)

	const rounds = 2000
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := cell.Load()
				if snap == nil {
					continue
				}
				// Every field of one snapshot derives from the same tick number.
				n := snap.Messages.Used
				assert.Equal(t, n*10, snap.Tokens.Used)
				assert.Equal(t, n/100, snap.Cost.Used)
				assert.Equal(t, Percent(n, 1000), snap.Messages.Percent)
			}
		}()
	}

	for i := 1; i <= rounds; i++ {
		_, ok := p.Publish(Inputs{
			Plan:   plan,
			State:  activeState(i, i*10, float64(i)/100),
			Limits: limits,
		}, now.Add(time.Duration(i)*time.Second))
		require.True(t, ok)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, float64(rounds), cell.Load().Messages.Used)
}
