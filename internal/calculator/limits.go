package calculator

import (
	"sort"

	"github.com/samber/lo"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

// Estimate returns the per-window limit of metric under plan.
//
// Standard plans read the fixed table. The custom plan takes the
// nearest-rank 90th percentile of closed windows' totals and returns 0 when
// there are none; callers must treat 0 as unknown. Nothing is cached, so the
// result always reflects the history passed in.
func Estimate(plan Plan, history []types.SessionWindow, metric types.Metric) float64 {
	switch p := plan.(type) {
	case StandardPlan:
		return p.Limits().Value(metric)
	case CustomPlan:
		return Percentile90(closedTotals(history, metric))
	}
	return 0
}

// EstimateLimits resolves all three limits at once.
func EstimateLimits(plan Plan, history []types.SessionWindow) types.PlanLimit {
	if p, ok := plan.(StandardPlan); ok {
		return p.Limits()
	}
	return types.PlanLimit{
		Messages: int(Estimate(plan, history, types.MetricMessages)),
		Tokens:   int(Estimate(plan, history, types.MetricTokens)),
		Cost:     Estimate(plan, history, types.MetricCost),
	}
}

// Percentile90 returns the nearest-rank 90th percentile: the value at
// rank ceil(0.9*N) of the ascending values. Empty input yields 0.
func Percentile90(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := (9*n + 9) / 10
	return sorted[rank-1]
}

func closedTotals(history []types.SessionWindow, metric types.Metric) []float64 {
	return lo.FilterMap(history, func(w types.SessionWindow, _ int) (float64, bool) {
		return w.Totals.Value(metric), !w.IsActive
	})
}
