package server

import (
	"time"

	"omtobe/internal/cycle"
)

type HealthResponse struct {
	Status        string `json:"status" example:"ok"`
	Version       string `json:"version"`
	SchemaVersion int    `json:"schema_version"`
	Timestamp     string `json:"timestamp" format:"date-time"`
}

type CreateUserRequest struct {
	ID             string `json:"id,omitempty" doc:"Optional user id; generated when empty"`
	Email          string `json:"email" format:"email"`
	Timezone       string `json:"timezone,omitempty" example:"Asia/Tokyo"`
	HealthKitToken string `json:"healthkit_token,omitempty"`
	CalendarToken  string `json:"calendar_token,omitempty"`
}

type UserResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Timezone           string `json:"timezone"`
	HealthKitConnected bool   `json:"healthkit_connected"`
	CalendarConnected  bool   `json:"calendar_connected"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

type UpdateSourcesRequest struct {
	HealthKitToken *string `json:"healthkit_token,omitempty"`
	CalendarToken  *string `json:"calendar_token,omitempty"`
}

type SampleRequest struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value" minimum:"0"`
}

type EventRequest struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type EvaluateRequest struct {
	CurrentHRV float64         `json:"current_hrv" minimum:"0"`
	Samples    []SampleRequest `json:"samples,omitempty"`
	Events     []EventRequest  `json:"events,omitempty"`
}

func (r EvaluateRequest) inputs() cycle.Inputs {
	in := cycle.Inputs{CurrentHRV: r.CurrentHRV}
	for _, s := range r.Samples {
		in.Samples = append(in.Samples, cycle.HRVSample{Timestamp: s.Timestamp.UTC(), Value: s.Value})
	}
	for _, e := range r.Events {
		in.Events = append(in.Events, cycle.Event{ID: e.EventID, Title: e.Title, Start: e.StartTime.UTC(), End: e.EndTime.UTC()})
	}
	return in
}

type DecisionRequest struct {
	DecisionType string `json:"decision_type" enum:"Proceed,Delay"`
}

type ReflectionRequest struct {
	Response string `json:"response" enum:"Yes,No,Skip"`
}

type CreateAPIKeyRequest struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

type DevLoginRequest struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at" format:"date-time"`
}

type WhoAmIResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	Source string   `json:"source"`
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
