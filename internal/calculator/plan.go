package calculator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sdpower/ccmonitor-go/internal/types"
)

// CustomPlanID selects limits estimated from the window history.
const CustomPlanID = "custom"

// Plan is either a StandardPlan with a fixed limit table entry or the CustomPlan.
type Plan interface {
	ID() string
	isPlan()
}

// StandardPlan is a vendor plan with fixed per-window limits.
type StandardPlan struct {
	Name string
}

func (p StandardPlan) ID() string { return p.Name }
func (StandardPlan) isPlan()      {}

// Limits returns the plan's entry from the fixed table.
func (p StandardPlan) Limits() types.PlanLimit {
	return standardLimits[p.Name]
}

// CustomPlan has no fixed limits; they are inferred from closed windows.
type CustomPlan struct{}

func (CustomPlan) ID() string { return CustomPlanID }
func (CustomPlan) isPlan()    {}

var standardLimits = map[string]types.PlanLimit{
	"pro":   {Messages: 250, Tokens: 38705, Cost: 50.0},
	"max5":  {Messages: 1000, Tokens: 88000, Cost: 35.0},
	"max20": {Messages: 2000, Tokens: 220000, Cost: 140.0},
}

// ParsePlan resolves a plan identifier, case-insensitively.
func ParsePlan(id string) (Plan, error) {
	name := strings.ToLower(strings.TrimSpace(id))
	if name == CustomPlanID {
		return CustomPlan{}, nil
	}
	if _, ok := standardLimits[name]; ok {
		return StandardPlan{Name: name}, nil
	}
	return nil, fmt.Errorf("%w: %q (valid: %s)", types.ErrUnknownPlan, id, strings.Join(PlanIDs(), ", "))
}

// PlanIDs lists every accepted plan identifier.
func PlanIDs() []string {
	ids := make([]string, 0, len(standardLimits)+1)
	for name := range standardLimits {
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return append(ids, CustomPlanID)
}
