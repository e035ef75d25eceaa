package calculator

import (
	"testing"
	"time"

	"github.com/sdpower/ccmonitor-go/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func windowEndingAt(end time.Time) types.SessionWindow {
	return types.SessionWindow{Start: end.Add(-5 * time.Hour), End: end, IsActive: true}
}

func TestProjectRemaining(t *testing.T) {
	resetAt := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	p := NewResetProjector(time.UTC, TimeFormat12h)

	info := p.Project(windowEndingAt(resetAt), resetAt.Add(-2*time.Hour))
	assert.Equal(t, resetAt, info.Timestamp)
	assert.Equal(t, int64(7200), info.SecondsRemaining)
	assert.Equal(t, "6:00 PM", info.FormattedTime)
}

func TestProjectClampsClockSkew(t *testing.T) {
	resetAt := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	p := NewResetProjector(time.UTC, TimeFormat12h)

	info := p.Project(windowEndingAt(resetAt), resetAt.Add(5*time.Second))
	assert.Equal(t, int64(0), info.SecondsRemaining)

	info = p.Project(windowEndingAt(resetAt), resetAt)
	assert.Equal(t, int64(0), info.SecondsRemaining)
}

func TestProjectTruncatesToWholeSeconds(t *testing.T) {
	resetAt := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)
	p := NewResetProjector(nil, TimeFormat12h)

	info := p.Project(windowEndingAt(resetAt), resetAt.Add(-1500*time.Millisecond))
	assert.Equal(t, int64(1), info.SecondsRemaining)
}

func TestProjectTimestampStaysUTC(t *testing.T) {
	warsaw, err := time.LoadLocation("Europe/Warsaw")
	require.NoError(t, err)
	resetAt := time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)

	info := NewResetProjector(warsaw, TimeFormat24h).Project(windowEndingAt(resetAt.In(warsaw)), resetAt)
	assert.Equal(t, time.UTC, info.Timestamp.Location())
	assert.True(t, info.Timestamp.Equal(resetAt))
	assert.Equal(t, "19:00", info.FormattedTime)
}

func TestFormatClock(t *testing.T) {
	midnight := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name   string
		t      time.Time
		loc    *time.Location
		format TimeFormat
		want   string
	}{
		{"midnight 12h", midnight, time.UTC, TimeFormat12h, "12:00 AM"},
		{"noon 12h", midnight.Add(12 * time.Hour), time.UTC, TimeFormat12h, "12:00 PM"},
		{"afternoon 24h", midnight.Add(14*time.Hour + 30*time.Minute), time.UTC, TimeFormat24h, "14:30"},
		{"converted zone", midnight.Add(18 * time.Hour), newYork, TimeFormat12h, "1:00 PM"},
		{"nil location", midnight.Add(9*time.Hour + 5*time.Minute), nil, TimeFormat12h, "9:05 AM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatClock(tt.t, tt.loc, tt.format))
		})
	}
}

func TestParseTimeFormat(t *testing.T) {
	f, err := ParseTimeFormat("")
	require.NoError(t, err)
	assert.Equal(t, TimeFormat12h, f)

	f, err = ParseTimeFormat("24H")
	require.NoError(t, err)
	assert.Equal(t, TimeFormat24h, f)

	_, err = ParseTimeFormat("36h")
	assert.ErrorIs(t, err, types.ErrInvalidFormat)
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}
