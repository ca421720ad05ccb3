package sources

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/option"

	"omtobe/internal/config"
	"omtobe/internal/cycle"
	"omtobe/internal/domain"
	"omtobe/internal/sources/gcal"
	"omtobe/internal/sources/healthkit"
	"omtobe/internal/sources/mock"
)

// Live builds HealthKit and Google Calendar clients from the user's stored tokens.
type Live struct {
	HealthKitBaseURL string
	HTTP             *http.Client
	CalendarID       string
	OAuth            *gcal.OAuthClient
	// CalendarOptions are appended when building the calendar service.
	CalendarOptions []option.ClientOption
}

func (l Live) ForUser(ctx context.Context, u domain.User) (Set, error) {
	if strings.TrimSpace(u.HealthKitToken) == "" {
		return Set{}, fmt.Errorf("healthkit: %w", ErrNotConnected)
	}
	if strings.TrimSpace(u.CalendarToken) == "" {
		return Set{}, fmt.Errorf("calendar: %w", ErrNotConnected)
	}
	hrv := &healthkit.Client{BaseURL: l.HealthKitBaseURL, Token: u.HealthKitToken, HTTP: l.HTTP}
	tok, err := gcal.ParseToken(u.CalendarToken)
	if err != nil {
		return Set{}, fmt.Errorf("calendar token: %w", err)
	}
	cal, err := gcal.NewClient(ctx, l.OAuth, tok, l.CalendarID, l.CalendarOptions...)
	if err != nil {
		return Set{}, fmt.Errorf("calendar: %w: %v", ErrUnavailable, err)
	}
	return Set{HRV: hrvAdapter{hrv}, Calendar: calAdapter{cal}}, nil
}

// FromConfig returns the provider selected by sources.mode.
func FromConfig(cfg config.Sources) Provider {
	if cfg.Mode != config.SourcesLive {
		return Static(Set{HRV: mock.NewHRV(time.Now().UnixNano()), Calendar: mock.Calendar{}})
	}
	timeout := time.Duration(cfg.HealthKit.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	live := Live{
		HealthKitBaseURL: cfg.HealthKit.BaseURL,
		HTTP:             &http.Client{Timeout: timeout},
		CalendarID:       cfg.Calendar.CalendarID,
		OAuth: gcal.NewOAuthClient(gcal.OAuthConfig{
			ClientID:     cfg.Calendar.ClientID,
			ClientSecret: cfg.Calendar.ClientSecret,
		}),
	}
	if cfg.Calendar.Endpoint != "" {
		live.CalendarOptions = append(live.CalendarOptions, option.WithEndpoint(cfg.Calendar.Endpoint))
	}
	return live
}

type hrvAdapter struct{ c *healthkit.Client }

func (a hrvAdapter) Latest(ctx context.Context, now time.Time) (*cycle.HRVSample, error) {
	s, err := a.c.Latest(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("healthkit: %w: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (a hrvAdapter) Window(ctx context.Context, start, end time.Time) ([]cycle.HRVSample, error) {
	s, err := a.c.Window(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("healthkit: %w: %v", ErrUnavailable, err)
	}
	return s, nil
}

type calAdapter struct{ c *gcal.Client }

func (a calAdapter) Events(ctx context.Context, start, end time.Time) ([]cycle.Event, error) {
	ev, err := a.c.Events(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("calendar: %w: %v", ErrUnavailable, err)
	}
	return ev, nil
}
