// Package snapshot assembles usage snapshots and hands them to readers.
package snapshot

import (
	"math"
	"time"

	"github.com/sdpower/ccmonitor-go/internal/calculator"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

// Percent returns used/limit*100, or 0 when limit is not positive.
// The multiplication happens first so exact ratios stay exact.
// Zero therefore stands for both "no usage" and "limit unknown".
func Percent(used, limit float64) float64 {
	if limit <= 0 || math.IsNaN(limit) || math.IsInf(limit, 0) {
		return 0
	}
	p := used * 100 / limit
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}

// NewMetric builds a UsageMetric with its percentage filled in.
func NewMetric(used, limit float64) types.UsageMetric {
	return types.UsageMetric{Used: used, Limit: limit, Percent: Percent(used, limit)}
}

// Inputs are the per-tick results merged into a snapshot.
type Inputs struct {
	Plan     calculator.Plan
	State    calculator.WindowerState
	Limits   types.PlanLimit
	BurnRate types.BurnRate
	Reset    types.ResetInfo
}

// Build assembles a snapshot. It returns false when there is no active
// window, in which case nothing should be published.
func Build(in Inputs, now time.Time) (*types.UsageSnapshot, bool) {
	active := in.State.Active
	if active == nil {
		return nil, false
	}

	planID := ""
	if in.Plan != nil {
		planID = in.Plan.ID()
	}

	totals := active.Totals
	return &types.UsageSnapshot{
		Plan:        planID,
		Messages:    NewMetric(float64(totals.Messages), float64(in.Limits.Messages)),
		Tokens:      NewMetric(float64(totals.Tokens), float64(in.Limits.Tokens)),
		Cost:        NewMetric(totals.Cost, in.Limits.Cost),
		Reset:       in.Reset,
		BurnRate:    in.BurnRate,
		WindowStart: active.Start,
		GeneratedAt: now,
	}, true
}

// Publisher is the only component that hands snapshots to readers.
type Publisher struct {
	cell *Cell
}

func NewPublisher(cell *Cell) *Publisher {
	return &Publisher{cell: cell}
}

// Cell exposes the slot readers load from.
func (p *Publisher) Cell() *Cell {
	return p.cell
}

// Publish builds a fresh snapshot and swaps it into the cell in one step.
// With no active window the cell keeps its previous value and false is returned.
func (p *Publisher) Publish(in Inputs, now time.Time) (*types.UsageSnapshot, bool) {
	snap, ok := Build(in, now)
	if !ok {
		return nil, false
	}
	p.cell.Store(snap)
	return snap, true
}
