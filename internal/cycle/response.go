package cycle

import (
	"fmt"
	"time"
)

// Decision is the user's answer to the brake screen.
type Decision string

const (
	DecisionProceed Decision = "Proceed"
	DecisionDelay   Decision = "Delay"
)

// ParseDecision accepts exactly "Proceed" or "Delay".
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionProceed, DecisionDelay:
		return Decision(s), nil
	}
	return "", fmt.Errorf("invalid decision type %q", s)
}

// Reflection is the day-7 answer.
type Reflection string

const (
	ReflectionYes  Reflection = "Yes"
	ReflectionNo   Reflection = "No"
	ReflectionSkip Reflection = "Skip"
)

// ParseReflection accepts exactly "Yes", "No" or "Skip".
func ParseReflection(s string) (Reflection, error) {
	switch Reflection(s) {
	case ReflectionYes, ReflectionNo, ReflectionSkip:
		return Reflection(s), nil
	}
	return "", fmt.Errorf("invalid reflection response %q", s)
}

// DecisionRecord is the only shape a decision is ever persisted in.
type DecisionRecord struct {
	Timestamp time.Time
	Type      Decision
	Day       int
}

// ReflectionRecord is the only shape a reflection is ever persisted in.
type ReflectionRecord struct {
	Timestamp  time.Time
	Response   Reflection
	CycleStart time.Time
}

const (
	StatusCoolingActivated = "cooling_period_activated"
	StatusDecisionLocked   = "decision_locked"
)

// DecisionOutcome describes the transition caused by a brake response.
type DecisionOutcome struct {
	Status string
	Record DecisionRecord
	// RetriggerAt is set for Delay.
	RetriggerAt *time.Time
}

// LockToken renders a display time as the decision-lock token.
func LockToken(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// OnBrakeResponse applies a Delay or Proceed response. Proceed locks on the
// last display timestamp, so a Proceed with no prior display leaves no lock.
// Any other decision leaves the state untouched and returns an error.
func (s *State) OnBrakeResponse(d Decision, now time.Time) (DecisionOutcome, error) {
	now = now.UTC()
	rec := DecisionRecord{Timestamp: now, Type: d, Day: s.Day(now)}
	switch d {
	case DecisionDelay:
		start := now
		s.CoolingActive = true
		s.CoolingStart = &start
		retrigger := now.Add(CoolingPeriod)
		return DecisionOutcome{Status: StatusCoolingActivated, Record: rec, RetriggerAt: &retrigger}, nil
	case DecisionProceed:
		s.LockedFor = LockToken(s.LastDisplay)
		return DecisionOutcome{Status: StatusDecisionLocked, Record: rec}, nil
	}
	return DecisionOutcome{}, fmt.Errorf("invalid decision type %q", d)
}

// ReflectionOutcome describes a recorded reflection.
type ReflectionOutcome struct {
	Record         ReflectionRecord
	NextCycleStart time.Time
}

// OnReflection records a day-7 reflection. The caller must have checked the
// phase. It does not move CycleStart; ResetCycle does.
func (s *State) OnReflection(r Reflection, now time.Time) ReflectionOutcome {
	return ReflectionOutcome{
		Record: ReflectionRecord{
			Timestamp:  now.UTC(),
			Response:   r,
			CycleStart: s.CycleStart,
		},
		NextCycleStart: NextCycleStart(s.CycleStart),
	}
}
