package cycle

import (
	"testing"
	"time"
)

func TestDayOf(t *testing.T) {
	start := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"at start", start, 1},
		{"just before one day", start.Add(24*time.Hour - time.Second), 1},
		{"one day", start.Add(24 * time.Hour), 2},
		{"three days", start.Add(72 * time.Hour), 4},
		{"six days", start.Add(6 * 24 * time.Hour), 7},
		{"wraps at seven", start.Add(7 * 24 * time.Hour), 1},
		{"second cycle day 3", start.Add(9*24*time.Hour + time.Hour), 3},
		{"before start clamps", start.Add(-36 * time.Hour), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DayOf(tc.now, start); got != tc.want {
				t.Fatalf("DayOf = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPhaseOf(t *testing.T) {
	want := map[int]Phase{
		1: PhaseTotalSilence,
		2: PhaseTotalSilence,
		3: PhaseInterventionLogic,
		4: PhaseInterventionLogic,
		5: PhaseInterventionLogic,
		6: PhasePreparation,
		7: PhaseReflection,
	}
	for d, p := range want {
		if got := PhaseOf(d); got != p {
			t.Fatalf("PhaseOf(%d) = %q, want %q", d, got, p)
		}
	}
}

func TestNextCycleStart(t *testing.T) {
	start := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	got := NextCycleStart(start)
	want := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("NextCycleStart = %s, want %s", got, want)
	}
}

func TestResetBoundary(t *testing.T) {
	cases := []struct {
		start time.Time
		want  time.Time
	}{
		{time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC), time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC), time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := ResetBoundary(tc.start)
		if !got.Equal(tc.want) {
			t.Fatalf("ResetBoundary(%s) = %s, want %s", tc.start, got, tc.want)
		}
		if got.Sub(tc.start) < DaysPerCycle*24*time.Hour {
			t.Fatalf("boundary %s falls inside the cycle started %s", got, tc.start)
		}
	}
}

func TestShouldShowReflection(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	day7 := start.Add(6 * 24 * time.Hour)
	if !ShouldShowReflection(day7.Add(9*time.Hour), start, time.UTC, ReflectionHour) {
		t.Fatalf("expected reflection at 09:00 UTC on day 7")
	}
	if ShouldShowReflection(day7.Add(10*time.Hour), start, time.UTC, ReflectionHour) {
		t.Fatalf("expected no reflection at 10:00")
	}
	if ShouldShowReflection(start.Add(9*time.Hour), start, time.UTC, ReflectionHour) {
		t.Fatalf("expected no reflection on day 1")
	}
	tokyo := time.FixedZone("JST", 9*60*60)
	// 00:00 UTC on day 7 is 09:00 in UTC+9.
	if !ShouldShowReflection(day7, start, tokyo, ReflectionHour) {
		t.Fatalf("expected reflection at 09:00 local time")
	}
}
