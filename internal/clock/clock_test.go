package clock_test

import (
	"testing"
	"time"

	"github.com/sdpower/ccmonitor-go/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}

func TestFake_SetAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	c := clock.NewFake(start)
	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	later := start.Add(5 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}
