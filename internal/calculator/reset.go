package calculator

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // display_timezone must resolve on hosts without zoneinfo

	"github.com/sdpower/ccmonitor-go/internal/types"
)

// TimeFormat selects the clock style of ResetInfo.FormattedTime.
type TimeFormat string

const (
	TimeFormat12h TimeFormat = "12h"
	TimeFormat24h TimeFormat = "24h"
)

// ParseTimeFormat accepts "12h" or "24h"; empty means 12h.
func ParseTimeFormat(s string) (TimeFormat, error) {
	switch TimeFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", TimeFormat12h:
		return TimeFormat12h, nil
	case TimeFormat24h:
		return TimeFormat24h, nil
	}
	return "", fmt.Errorf("%w: time format %q", types.ErrInvalidFormat, s)
}

// ResetProjector derives the reset instant of the active window.
type ResetProjector struct {
	Location *time.Location
	Format   TimeFormat
}

func NewResetProjector(loc *time.Location, format TimeFormat) ResetProjector {
	if loc == nil {
		loc = time.UTC
	}
	return ResetProjector{Location: loc, Format: format}
}

// Project returns the reset of window as seen at now. The timestamp is the
// window's nominal end in UTC; SecondsRemaining never goes below zero.
func (p ResetProjector) Project(window types.SessionWindow, now time.Time) types.ResetInfo {
	resetAt := window.End.UTC()

	remaining := resetAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return types.ResetInfo{
		Timestamp:        resetAt,
		SecondsRemaining: int64(remaining / time.Second),
		FormattedTime:    FormatClock(resetAt, p.Location, p.Format),
	}
}

// FormatClock renders t as a wall-clock string in loc.
func FormatClock(t time.Time, loc *time.Location, format TimeFormat) string {
	if loc == nil {
		loc = time.UTC
	}
	if format == TimeFormat24h {
		return t.In(loc).Format("15:04")
	}
	return t.In(loc).Format("3:04 PM")
}

// LoadLocation resolves an IANA zone name. On failure it still returns UTC
// together with the error so the caller can log and carry on.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
