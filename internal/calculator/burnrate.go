package calculator

import (
	"time"

	"github.com/sdpower/ccmonitor-go/internal/types"
)

// BurnRateLookback is the trailing span the burn rate averages over.
const BurnRateLookback = 60 * time.Minute

// CalculateBurnRate averages token consumption over the last hour of the
// active window. The divisor is the observed span: the lookback, or the
// window's age when it is younger, never less than one minute. It does not
// project forward.
func CalculateBurnRate(events []types.UsageEvent, windowStart, now time.Time) types.BurnRate {
	from := now.Add(-BurnRateLookback)
	if windowStart.After(from) {
		from = windowStart
	}

	tokens := 0
	matched := 0
	for _, ev := range events {
		if ev.Timestamp.Before(from) || ev.Timestamp.After(now) {
			continue
		}
		tokens += ev.Tokens
		matched++
	}
	if matched == 0 {
		return types.BurnRate{}
	}

	minutes := now.Sub(windowStart).Minutes()
	if minutes > BurnRateLookback.Minutes() {
		minutes = BurnRateLookback.Minutes()
	}
	if minutes < 1 {
		minutes = 1
	}

	return types.BurnRate{
		TokensPerMinute: float64(tokens) / minutes,
	}
}
