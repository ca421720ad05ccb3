package omtobesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Omtobe HTTP API client bound to one user.
type Client struct {
	BaseURL     string
	UserID      string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base path,
// e.g. http://localhost:8000/api/v1.
func New(baseURL, userID string) *Client {
	return &Client{
		BaseURL: baseURL,
		UserID:  userID,
		Timeout: 10 * time.Second,
	}
}

// State is the cycle summary returned by the state endpoints.
type State struct {
	UserID              string  `json:"user_id"`
	CurrentDay          int     `json:"current_day"`
	Phase               string  `json:"phase"`
	CycleStart          string  `json:"cycle_start"`
	CoolingPeriodActive bool    `json:"cooling_period_active"`
	CoolingPeriodEndsAt *string `json:"cooling_period_ends_at,omitempty"`
	DecisionLocked      bool    `json:"decision_locked"`
	HRVBaselineMean     float64 `json:"hrv_baseline_mean"`
	ReflectionDue       bool    `json:"reflection_due"`
	NextCycleStart      string  `json:"next_cycle_start"`
}

// BrakeCheck tells the app whether to show the brake screen.
type BrakeCheck struct {
	ShouldDisplay   bool     `json:"should_display"`
	EventID         string   `json:"event_id,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	CurrentDay      int      `json:"current_day"`
	Phase           string   `json:"phase"`
	HRVCurrent      *float64 `json:"hrv_current,omitempty"`
	HRVBaselineMean float64  `json:"hrv_baseline_mean"`
	Timestamp       string   `json:"timestamp"`
}

// Sample is one HRV reading for Evaluate.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// CalendarEvent is one calendar entry for Evaluate.
type CalendarEvent struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Decision is the result of answering the brake screen.
type Decision struct {
	Status        string  `json:"status"`
	DecisionType  string  `json:"decision_type"`
	Timestamp     string  `json:"timestamp"`
	NextAction    string  `json:"next_action"`
	RetriggerTime *string `json:"re_trigger_time,omitempty"`
}

// Reflection is the result of answering the day 7 question.
type Reflection struct {
	Status         string `json:"status"`
	Response       string `json:"response"`
	Timestamp      string `json:"timestamp"`
	NextCycleStart string `json:"next_cycle_start"`
	State          State  `json:"state"`
}

// DecisionLog is one row of the decision history.
type DecisionLog struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	DecisionType string `json:"decision_type"`
	Day          int    `json:"day"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// State returns the user's current cycle state.
func (c *Client) State(ctx context.Context) (State, error) {
	var resp State
	err := c.do(ctx, http.MethodGet, c.userPath("state"), nil, &resp)
	return resp, err
}

// CheckBrake evaluates the brake gate against the server's configured sources.
func (c *Client) CheckBrake(ctx context.Context) (BrakeCheck, error) {
	var resp BrakeCheck
	err := c.do(ctx, http.MethodPost, c.userPath("state/check"), nil, &resp)
	return resp, err
}

// Evaluate evaluates the brake gate against caller-supplied readings.
func (c *Client) Evaluate(ctx context.Context, currentHRV float64, samples []Sample, events []CalendarEvent) (BrakeCheck, error) {
	body := map[string]any{
		"current_hrv": currentHRV,
		"samples":     samples,
		"events":      events,
	}
	var resp BrakeCheck
	err := c.do(ctx, http.MethodPost, c.userPath("state/evaluate"), body, &resp)
	return resp, err
}

// RecordDecision answers the brake screen with Proceed or Delay.
func (c *Client) RecordDecision(ctx context.Context, decisionType string) (Decision, error) {
	var resp Decision
	err := c.do(ctx, http.MethodPost, c.userPath("decisions"), map[string]any{"decision_type": decisionType}, &resp)
	return resp, err
}

// RecordReflection answers the day 7 question with Yes, No or Skip.
func (c *Client) RecordReflection(ctx context.Context, response string) (Reflection, error) {
	var resp Reflection
	err := c.do(ctx, http.MethodPost, c.userPath("reflections"), map[string]any{"response": response}, &resp)
	return resp, err
}

// Decisions returns the decision history, newest first.
func (c *Client) Decisions(ctx context.Context, limit int) ([]DecisionLog, error) {
	endpoint := c.userPath("decisions")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []DecisionLog
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) userPath(p string) string {
	return fmt.Sprintf("users/%s/%s", url.PathEscape(c.UserID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
