package domain

// User is an account. Source tokens are never serialized.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Timezone       string `json:"timezone"`
	HealthKitToken string `json:"-"`
	CalendarToken  string `json:"-"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

// StateRecord is the persisted row of a user's cycle state.
type StateRecord struct {
	UserID                 string  `json:"user_id"`
	CycleStart             string  `json:"cycle_start" format:"date-time"`
	CoolingPeriodActive    bool    `json:"cooling_period_active"`
	CoolingPeriodStart     *string `json:"cooling_period_start,omitempty" format:"date-time"`
	DecisionLockedForEvent *string `json:"decision_locked_for_event,omitempty"`
	LastBrakeDisplayTime   *string `json:"last_brake_display_time,omitempty" format:"date-time"`
	BaselineMean           float64 `json:"hrv_baseline_mean"`
	BaselineStdDev         float64 `json:"hrv_baseline_std_dev"`
	BaselineSamples        int     `json:"hrv_baseline_samples"`
	UpdatedAt              string  `json:"updated_at" format:"date-time"`
}

type DecisionLog struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Timestamp    string `json:"timestamp" format:"date-time"`
	DecisionType string `json:"decision_type" enum:"Proceed,Delay"`
	Day          int    `json:"day" minimum:"1" maximum:"7"`
}

type ReflectionLog struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Timestamp  string `json:"timestamp" format:"date-time"`
	Response   string `json:"response" enum:"Yes,No,Skip"`
	CycleStart string `json:"cycle_start" format:"date-time"`
}

type APIKey struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	Name      string   `json:"name,omitempty"`
	KeyHash   string   `json:"-"`
	Roles     []string `json:"roles,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// TimeFormat is the fixed-width UTC layout used for stored timestamps so they sort lexically.
const TimeFormat = "2006-01-02T15:04:05.000000000Z07:00"
