package cycle

import "time"

// CoolingPeriod suppresses the brake screen after a Delay response.
const CoolingPeriod = 1200 * time.Second

// State is one user's cycle state. It is owned by a single caller for the
// duration of an operation and persisted verbatim afterwards.
type State struct {
	CycleStart    time.Time
	CoolingActive bool
	CoolingStart  *time.Time
	// LockedFor is an opaque token; empty means no decision lock.
	LockedFor   string
	LastDisplay *time.Time
	// Baseline is the last computed baseline; observability only.
	Baseline Baseline
}

// NewState starts a cycle at now.
func NewState(now time.Time) State {
	return State{CycleStart: now.UTC()}
}

// Day is always derived from CycleStart.
func (s State) Day(now time.Time) int {
	return DayOf(now, s.CycleStart)
}

func (s State) Phase(now time.Time) Phase {
	return PhaseOf(s.Day(now))
}

// Locked reports whether a Proceed decision suppresses further prompts.
func (s State) Locked() bool {
	return s.LockedFor != ""
}

// Inputs are the already-normalized signals for one evaluation.
type Inputs struct {
	CurrentHRV float64
	Samples    []HRVSample
	Events     []Event
}

// Display is the gate result. EventID carries the triggering event's title.
type Display struct {
	Show    bool
	EventID string
}

func (s State) coolingExpired(now time.Time) bool {
	if s.CoolingStart == nil {
		return false
	}
	return now.Sub(*s.CoolingStart) >= CoolingPeriod
}

// ShouldDisplay decides whether to show the brake screen at now. Outside the
// intervention phase it never shows. The only state it advances is the cooling
// expiry, the observed baseline and LastDisplay on a positive result.
func (s *State) ShouldDisplay(now time.Time, in Inputs) Display {
	if s.Phase(now) != PhaseInterventionLogic {
		return Display{}
	}
	if s.CoolingActive {
		if !s.coolingExpired(now) {
			return Display{}
		}
		s.CoolingActive = false
	}
	if s.Locked() {
		return Display{}
	}
	s.Baseline = ComputeBaseline(in.Samples)
	if !IsDrop(in.CurrentHRV, s.Baseline.Mean) {
		return Display{}
	}
	evt, ok := ActiveHighStakesEvent(in.Events, now)
	if !ok {
		return Display{}
	}
	shown := now.UTC()
	s.LastDisplay = &shown
	return Display{Show: true, EventID: evt.Title}
}

// ResetCycle starts a new cycle at now and clears every transient field.
func (s *State) ResetCycle(now time.Time) {
	*s = NewState(now)
}
