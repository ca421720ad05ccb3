// Package cycle implements the 7-day intervention state machine: day and phase
// computation, HRV drop detection, high-stakes event classification and the
// display gate with its cooling and lock timers.
//
// Everything here is pure: callers pass "now" in and persist State themselves.
package cycle

import "time"

const (
	// DaysPerCycle is the length of one cycle.
	DaysPerCycle = 7
	day          = 24 * time.Hour
)

// Phase is the behavior regime derived from the day of the cycle.
type Phase string

const (
	PhaseTotalSilence      Phase = "Total Silence"
	PhaseInterventionLogic Phase = "Intervention Logic"
	PhasePreparation       Phase = "Preparation"
	PhaseReflection        Phase = "Reflection"
)

// DayOf returns the 1-based day of the cycle anchored at start.
// A now before start is clamped to day 1.
func DayOf(now, start time.Time) int {
	elapsed := now.Sub(start)
	if elapsed < 0 {
		return 1
	}
	days := int(elapsed / day)
	return days%DaysPerCycle + 1
}

// PhaseOf maps a day in [1,7] to its phase.
func PhaseOf(d int) Phase {
	switch {
	case d <= 2:
		return PhaseTotalSilence
	case d <= 5:
		return PhaseInterventionLogic
	case d == 6:
		return PhasePreparation
	default:
		return PhaseReflection
	}
}

// NextCycleStart is midnight UTC of the day the cycle anchored at start ends (day 8, 00:00).
func NextCycleStart(start time.Time) time.Time {
	end := start.UTC().Add(DaysPerCycle * day)
	return time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
}

// ResetBoundary is the first 00:00 UTC at or after the end of the cycle anchored at
// start. Day 7 never overlaps it, so a sweep at this instant leaves the reflection
// window whole.
func ResetBoundary(start time.Time) time.Time {
	end := start.UTC().Add(DaysPerCycle * day)
	midnight := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	if midnight.Before(end) {
		midnight = midnight.Add(day)
	}
	return midnight
}

// ReflectionHour is the local hour at which the day-7 reflection prompt is shown.
const ReflectionHour = 9

// ShouldShowReflection reports whether the reflection screen is due: day 7 of the
// cycle and the given hour in the user's location.
func ShouldShowReflection(now, start time.Time, loc *time.Location, hour int) bool {
	if DayOf(now, start) != DaysPerCycle {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Hour() == hour
}
