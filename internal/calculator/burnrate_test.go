package calculator

import (
	"math"
	"testing"
	"time"

	"github.com/sdpower/ccmonitor-go/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCalculateBurnRateYoungWindow(t *testing.T) {
	start := t0
	now := start.Add(30 * time.Minute)
	events := []types.UsageEvent{
		event(0, 1, 5000, 0),
		event(10*time.Minute, 1, 5000, 0),
		event(29*time.Minute, 1, 5000, 0),
	}

	got := CalculateBurnRate(events, start, now)
	assert.Equal(t, 500.0, got.TokensPerMinute)
	assert.Equal(t, 0, got.MessagesPerMinute)
}

func TestCalculateBurnRateUsesTrailingHour(t *testing.T) {
	start := t0
	now := start.Add(3 * time.Hour)
	events := []types.UsageEvent{
		event(30*time.Minute, 1, 99999, 0), // outside the trailing hour
		event(2*time.Hour+30*time.Minute, 1, 3000, 0),
		event(2*time.Hour+59*time.Minute, 1, 3000, 0),
	}

	got := CalculateBurnRate(events, start, now)
	assert.Equal(t, 100.0, got.TokensPerMinute)
}

func TestCalculateBurnRateEmpty(t *testing.T) {
	now := t0.Add(2 * time.Hour)
	assert.Equal(t, types.BurnRate{}, CalculateBurnRate(nil, t0, now))

	stale := []types.UsageEvent{event(10*time.Minute, 1, 500, 0)}
	assert.Equal(t, types.BurnRate{}, CalculateBurnRate(stale, t0, now))
}

func TestCalculateBurnRateFloorsDivisorAtOneMinute(t *testing.T) {
	events := []types.UsageEvent{event(0, 1, 240, 0)}
	got := CalculateBurnRate(events, t0, t0.Add(10*time.Second))
	assert.Equal(t, 240.0, got.TokensPerMinute)
}

func TestCalculateBurnRateIgnoresFutureEvents(t *testing.T) {
	events := []types.UsageEvent{
		event(0, 1, 600, 0),
		event(20*time.Minute, 1, 1_000_000, 0),
	}
	got := CalculateBurnRate(events, t0, t0.Add(10*time.Minute))
	assert.Equal(t, 60.0, got.TokensPerMinute)
	assert.False(t, math.IsInf(got.TokensPerMinute, 0))
}
