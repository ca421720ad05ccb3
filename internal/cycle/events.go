package cycle

import (
	"strings"
	"time"
)

// Event is a normalized calendar event.
type Event struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

var highStakesKeywords = []string{"board", "negotiation", "review", "high-stakes"}

// IsHighStakes matches the title case-insensitively against the trigger keywords
// (substring, no word boundary) or a literal "!" prefix.
func IsHighStakes(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range highStakesKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return strings.HasPrefix(title, "!")
}

// Active reports whether now falls within [Start, End].
func (e Event) Active(now time.Time) bool {
	return !now.Before(e.Start) && !now.After(e.End)
}

// ActiveHighStakesEvent returns the first high-stakes event, in input order, that
// overlaps now.
func ActiveHighStakesEvent(events []Event, now time.Time) (Event, bool) {
	for _, e := range events {
		if IsHighStakes(e.Title) && e.Active(now) {
			return e, true
		}
	}
	return Event{}, false
}
