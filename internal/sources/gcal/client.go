// Package gcal lists Google Calendar events as cycle events.
package gcal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"omtobe/internal/cycle"
)

// Client wraps the Google Calendar API.
type Client struct {
	service    *calendar.Service
	calendarID string
}

// NewClient creates a calendar client for one user's token.
func NewClient(ctx context.Context, oauth *OAuthClient, token *oauth2.Token, calendarID string, opts ...option.ClientOption) (*Client, error) {
	service, err := oauth.Service(ctx, token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return NewFromService(service, calendarID), nil
}

// NewFromService wraps an existing service.
func NewFromService(service *calendar.Service, calendarID string) *Client {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Client{service: service, calendarID: calendarID}
}

// Events returns the events overlapping [start, end], ordered by start time.
// Cancelled events are skipped.
func (c *Client) Events(ctx context.Context, start, end time.Time) ([]cycle.Event, error) {
	var out []cycle.Event
	err := c.service.Events.List(c.calendarID).
		TimeMin(start.UTC().Format(time.RFC3339)).
		TimeMax(end.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *calendar.Events) error {
			out = append(out, convertEvents(page.Items)...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return out, nil
}

func convertEvents(items []*calendar.Event) []cycle.Event {
	events := make([]cycle.Event, 0, len(items))
	for _, item := range items {
		if item == nil || item.Status == "cancelled" {
			continue
		}
		start, ok := parseEventTime(item.Start)
		if !ok {
			continue
		}
		end, ok := parseEventTime(item.End)
		if !ok {
			end = start
		}
		events = append(events, cycle.Event{
			ID:    item.Id,
			Title: item.Summary,
			Start: start,
			End:   end,
		})
	}
	return events
}

func parseEventTime(t *calendar.EventDateTime) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v.UTC(), err == nil
	}
	if t.Date != "" {
		v, err := time.Parse("2006-01-02", t.Date)
		return v.UTC(), err == nil
	}
	return time.Time{}, false
}
