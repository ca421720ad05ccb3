package gcal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const eventsJSON = `{
  "kind": "calendar#events",
  "items": [
    {"id": "e1", "summary": "Board Meeting", "status": "confirmed",
     "start": {"dateTime": "2024-01-04T10:00:00+01:00"}, "end": {"dateTime": "2024-01-04T11:00:00+01:00"}},
    {"id": "e2", "summary": "Cancelled sync", "status": "cancelled",
     "start": {"dateTime": "2024-01-04T12:00:00Z"}, "end": {"dateTime": "2024-01-04T13:00:00Z"}},
    {"id": "e3", "summary": "Offsite", "status": "confirmed",
     "start": {"date": "2024-01-05"}, "end": {"date": "2024-01-06"}}
  ]
}`

func TestEventsListsAndConverts(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/calendars/team@example.com/events") {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(eventsJSON))
	}))
	defer srv.Close()

	ctx := context.Background()
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/"))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	c := NewFromService(svc, "team@example.com")
	start := time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC)
	events, err := c.Events(ctx, start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Title != "Board Meeting" || !events[0].Start.Equal(time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].ID != "e3" || !events[1].End.Equal(time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected all-day event %+v", events[1])
	}
	for _, want := range []string{"singleEvents=true", "orderBy=startTime", "timeMin="} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %s", gotQuery, want)
		}
	}
}

func TestParseToken(t *testing.T) {
	tok, err := ParseToken("ya29.abc")
	if err != nil || tok.AccessToken != "ya29.abc" {
		t.Fatalf("bare token: %+v %v", tok, err)
	}
	tok, err = ParseToken(`{"access_token":"a","refresh_token":"r","token_type":"Bearer"}`)
	if err != nil || tok.RefreshToken != "r" {
		t.Fatalf("json token: %+v %v", tok, err)
	}
	if _, err := ParseToken(""); err == nil {
		t.Fatalf("expected empty token error")
	}
	if _, err := ParseToken(`{"token_type":"Bearer"}`); err == nil {
		t.Fatalf("expected error for token without credentials")
	}
}
