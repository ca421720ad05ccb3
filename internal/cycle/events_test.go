package cycle

import (
	"testing"
	"time"
)

func TestIsHighStakes(t *testing.T) {
	cases := map[string]bool{
		"Q3 Board Review":          true,
		"! launch":                 true,
		"Lunch with Sam":           false,
		"Reviewing budget":         true,
		"NEGOTIATION prep":         true,
		"high-stakes call":         true,
		"High stakes call":         false,
		"Dashboard walkthrough":    true,
		"Launch !":                 false,
		"":                         false,
		"Contract negotiation 2/2": true,
	}
	for title, want := range cases {
		if got := IsHighStakes(title); got != want {
			t.Fatalf("IsHighStakes(%q) = %v, want %v", title, got, want)
		}
	}
}

func TestActiveHighStakesEvent(t *testing.T) {
	now := time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: "1", Title: "Lunch", Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
		{ID: "2", Title: "Board prep", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour)},
		{ID: "3", Title: "! Decide", Start: now, End: now.Add(time.Hour)},
		{ID: "4", Title: "Performance Review", Start: now.Add(-time.Hour), End: now},
	}
	got, ok := ActiveHighStakesEvent(events, now)
	if !ok {
		t.Fatalf("expected an active event")
	}
	if got.ID != "3" {
		t.Fatalf("expected first match by input order, got %s", got.ID)
	}
	if _, ok := ActiveHighStakesEvent(events[:2], now); ok {
		t.Fatalf("expected no active high-stakes event")
	}
	// end boundary is inclusive
	got, ok = ActiveHighStakesEvent(events[3:], now)
	if !ok || got.ID != "4" {
		t.Fatalf("expected inclusive end match")
	}
}
