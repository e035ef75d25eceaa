package calculator

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/sdpower/ccmonitor-go/internal/types"
)

const (
	// DefaultSessionDuration is Claude's billing window length
	DefaultSessionDuration = 5 * time.Hour
	// DefaultOutOfOrderTolerance is how far before the active window start an
	// event may land and still be folded into that window.
	DefaultOutOfOrderTolerance = time.Minute
)

// WindowerOptions configures session window boundaries.
type WindowerOptions struct {
	Duration    time.Duration
	Tolerance   time.Duration
	FloorToHour bool
}

// WindowerState is a copy of the windower's view after an ingest.
type WindowerState struct {
	Active  *types.SessionWindow
	History []types.SessionWindow
}

// HasActive reports whether there is a session to report on.
func (s WindowerState) HasActive() bool {
	return s.Active != nil
}

// Windower groups events into non-overlapping session windows.
// It is not safe for concurrent use; the engine owns it on a single goroutine.
type Windower struct {
	opts    WindowerOptions
	active  *types.SessionWindow
	history []types.SessionWindow
	seeded  []types.SessionWindow
	onClose func(types.SessionWindow)
}

func NewWindower(opts WindowerOptions) *Windower {
	if opts.Duration <= 0 {
		opts.Duration = DefaultSessionDuration
	}
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}
	return &Windower{opts: opts}
}

// OnClose registers fn to observe every window as it closes.
func (w *Windower) OnClose(fn func(types.SessionWindow)) {
	w.onClose = fn
}

// Seed loads previously closed windows (e.g. from the history store).
// Seeded windows only contribute to State().History; windows produced by
// ingestion replace seeded ones with the same start.
func (w *Windower) Seed(history []types.SessionWindow) {
	seeded := make([]types.SessionWindow, 0, len(history))
	for _, win := range history {
		win.IsActive = false
		seeded = append(seeded, win)
	}
	sort.Slice(seeded, func(i, j int) bool {
		return seeded[i].Start.Before(seeded[j].Start)
	})
	w.seeded = seeded
}

// Ingest folds ev into the active window, rolling over to a new window when
// ev falls beyond the active window's nominal end. Malformed events are
// rejected with a *types.MalformedEventError and leave the state untouched.
func (w *Windower) Ingest(ev types.UsageEvent) (WindowerState, error) {
	if err := w.validate(ev); err != nil {
		return w.State(), err
	}
	ts := ev.Timestamp.UTC()

	if w.active != nil && !ts.Before(w.active.End) {
		w.closeActive()
	}

	if w.active == nil {
		start := w.openAt(ts)
		w.active = &types.SessionWindow{
			Start:    start,
			End:      start.Add(w.opts.Duration),
			IsActive: true,
		}
	}

	w.active.Totals.Add(ev)
	w.active.EventCount++
	if ts.After(w.active.LastEventAt) {
		w.active.LastEventAt = ts
	}

	return w.State(), nil
}

// CloseExpired closes the active window once now reaches its nominal end.
func (w *Windower) CloseExpired(now time.Time) bool {
	if w.active == nil || now.Before(w.active.End) {
		return false
	}
	w.closeActive()
	return true
}

// State returns copies of the active window and the closed-window history.
func (w *Windower) State() WindowerState {
	state := WindowerState{History: w.mergedHistory()}
	if w.active != nil {
		active := *w.active
		state.Active = &active
	}
	return state
}

func (w *Windower) validate(ev types.UsageEvent) error {
	reject := func(reason string) error {
		return &types.MalformedEventError{Timestamp: ev.Timestamp, Reason: reason}
	}

	if ev.Timestamp.IsZero() {
		return reject("missing timestamp")
	}
	if ev.Messages < 0 || ev.Tokens < 0 {
		return reject("negative message or token delta")
	}
	if ev.Cost < 0 || math.IsNaN(ev.Cost) || math.IsInf(ev.Cost, 0) {
		return reject("invalid cost delta")
	}

	ts := ev.Timestamp.UTC()
	if w.active != nil {
		if ts.Before(w.active.Start.Add(-w.opts.Tolerance)) {
			return reject("timestamp precedes active window start by more than the out-of-order tolerance")
		}
		return nil
	}
	if n := len(w.history); n > 0 && ts.Before(w.history[n-1].End) {
		return reject("timestamp falls inside an already closed window")
	}
	return nil
}

// openAt returns the start of a window opened by an event at ts. An event
// inside a seeded window rebuilds that window from its original start.
func (w *Windower) openAt(ts time.Time) time.Time {
	var closedUntil time.Time
	if n := len(w.history); n > 0 {
		closedUntil = w.history[n-1].End
	}
	for _, win := range w.seeded {
		if !ts.Before(win.Start) && ts.Before(win.End) && !win.Start.Before(closedUntil) {
			return win.Start
		}
	}
	if w.opts.FloorToHour {
		return floorToHour(ts)
	}
	return ts
}

func (w *Windower) closeActive() {
	closed := *w.active
	closed.IsActive = false
	w.history = append(w.history, closed)
	w.active = nil

	if w.onClose != nil {
		w.onClose(closed)
	}
}

func (w *Windower) mergedHistory() []types.SessionWindow {
	if len(w.seeded) == 0 {
		out := make([]types.SessionWindow, len(w.history))
		copy(out, w.history)
		return out
	}

	own := w.history
	if w.active != nil {
		own = append(own[:len(own):len(own)], *w.active)
	}

	// Ingested windows supersede any seeded window they overlap.
	out := make([]types.SessionWindow, 0, len(w.seeded)+len(w.history))
	for _, win := range w.seeded {
		superseded := lo.ContainsBy(own, func(o types.SessionWindow) bool {
			return win.Start.Before(o.End) && o.Start.Before(win.End)
		})
		if !superseded {
			out = append(out, win)
		}
	}
	out = append(out, w.history...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// floorToHour floors a timestamp to the beginning of the hour
func floorToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
