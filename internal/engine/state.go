package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"omtobe/internal/cycle"
	"omtobe/internal/domain"
	"omtobe/internal/engine/auth"
	"omtobe/internal/sources"
)

// ReasonNoHRV is reported by CheckBrake when the HRV source has no recent sample.
const ReasonNoHRV = "No HRV data available"

// StateSummary is the read model of a user's cycle.
type StateSummary struct {
	UserID              string  `json:"user_id"`
	CurrentDay          int     `json:"current_day" minimum:"1" maximum:"7"`
	Phase               string  `json:"phase"`
	CycleStart          string  `json:"cycle_start" format:"date-time"`
	CoolingPeriodActive bool    `json:"cooling_period_active"`
	CoolingPeriodEndsAt *string `json:"cooling_period_ends_at,omitempty" format:"date-time"`
	DecisionLocked      bool    `json:"decision_locked"`
	HRVBaselineMean     float64 `json:"hrv_baseline_mean"`
	HRVBaselineStdDev   float64 `json:"hrv_baseline_std_dev"`
	HRVBaselineSamples  int     `json:"hrv_baseline_samples"`
	ReflectionDue       bool    `json:"reflection_due"`
	NextCycleStart      string  `json:"next_cycle_start" format:"date-time"`
}

// BrakeCheck is the result of one gate evaluation.
type BrakeCheck struct {
	ShouldDisplay   bool     `json:"should_display"`
	EventID         string   `json:"event_id,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	CurrentDay      int      `json:"current_day"`
	Phase           string   `json:"phase"`
	HRVCurrent      *float64 `json:"hrv_current,omitempty"`
	HRVBaselineMean float64  `json:"hrv_baseline_mean"`
	Timestamp       string   `json:"timestamp" format:"date-time"`
}

// DecisionResult reports a recorded brake response.
type DecisionResult struct {
	Status        string             `json:"status"`
	DecisionType  string             `json:"decision_type"`
	Timestamp     string             `json:"timestamp" format:"date-time"`
	NextAction    string             `json:"next_action"`
	RetriggerTime *string            `json:"re_trigger_time,omitempty" format:"date-time"`
	Record        domain.DecisionLog `json:"record"`
}

// ReflectionResult reports a recorded reflection and the cycle that replaced it.
type ReflectionResult struct {
	Status         string               `json:"status"`
	Response       string               `json:"response"`
	Timestamp      string               `json:"timestamp" format:"date-time"`
	NextCycleStart string               `json:"next_cycle_start" format:"date-time"`
	Record         domain.ReflectionLog `json:"record"`
	State          StateSummary         `json:"state"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(domain.TimeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toRecord(userID string, st cycle.State, now time.Time) domain.StateRecord {
	rec := domain.StateRecord{
		UserID:               userID,
		CycleStart:           formatTime(st.CycleStart),
		CoolingPeriodActive:  st.CoolingActive,
		CoolingPeriodStart:   formatTimePtr(st.CoolingStart),
		LastBrakeDisplayTime: formatTimePtr(st.LastDisplay),
		BaselineMean:         st.Baseline.Mean,
		BaselineStdDev:       st.Baseline.StdDev,
		BaselineSamples:      st.Baseline.SampleCount,
		UpdatedAt:            formatTime(now),
	}
	if st.LockedFor != "" {
		locked := st.LockedFor
		rec.DecisionLockedForEvent = &locked
	}
	return rec
}

func fromRecord(rec domain.StateRecord) (cycle.State, error) {
	start, err := parseTime(rec.CycleStart)
	if err != nil {
		return cycle.State{}, fmt.Errorf("cycle_start: %w", err)
	}
	coolingStart, err := parseTimePtr(rec.CoolingPeriodStart)
	if err != nil {
		return cycle.State{}, fmt.Errorf("cooling_period_start: %w", err)
	}
	lastDisplay, err := parseTimePtr(rec.LastBrakeDisplayTime)
	if err != nil {
		return cycle.State{}, fmt.Errorf("last_brake_display_time: %w", err)
	}
	st := cycle.State{
		CycleStart:    start,
		CoolingActive: rec.CoolingPeriodActive,
		CoolingStart:  coolingStart,
		LastDisplay:   lastDisplay,
		Baseline: cycle.Baseline{
			Mean:        rec.BaselineMean,
			StdDev:      rec.BaselineStdDev,
			SampleCount: rec.BaselineSamples,
		},
	}
	if rec.DecisionLockedForEvent != nil {
		st.LockedFor = *rec.DecisionLockedForEvent
	}
	return st, nil
}

func userLocation(u domain.User) *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (e Engine) summarize(u domain.User, st cycle.State, now time.Time) StateSummary {
	d := st.Day(now)
	sum := StateSummary{
		UserID:              u.ID,
		CurrentDay:          d,
		Phase:               string(cycle.PhaseOf(d)),
		CycleStart:          formatTime(st.CycleStart),
		CoolingPeriodActive: st.CoolingActive,
		DecisionLocked:      st.Locked(),
		HRVBaselineMean:     st.Baseline.Mean,
		HRVBaselineStdDev:   st.Baseline.StdDev,
		HRVBaselineSamples:  st.Baseline.SampleCount,
		ReflectionDue:       cycle.ShouldShowReflection(now, st.CycleStart, userLocation(u), e.reflectionHour()),
		NextCycleStart:      formatTime(cycle.NextCycleStart(st.CycleStart)),
	}
	if st.CoolingActive && st.CoolingStart != nil {
		ends := st.CoolingStart.Add(cycle.CoolingPeriod)
		sum.CoolingPeriodEndsAt = formatTimePtr(&ends)
	}
	return sum
}

// State returns the user's cycle summary, starting a cycle on first access.
func (e Engine) State(ctx context.Context, p auth.Principal, userID string) (StateSummary, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermStateRead); err != nil {
		return StateSummary{}, err
	}
	var out StateSummary
	err := e.withState(ctx, userID, func(_ *sql.Tx, u domain.User, st *cycle.State, now time.Time) error {
		out = e.summarize(u, *st, now)
		return nil
	})
	return out, err
}

// Evaluate runs the display gate on caller-supplied inputs and persists the result.
func (e Engine) Evaluate(ctx context.Context, p auth.Principal, userID string, in cycle.Inputs) (BrakeCheck, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermStateEvaluate); err != nil {
		return BrakeCheck{}, err
	}
	if in.CurrentHRV < 0 {
		return BrakeCheck{}, invalidArg("current_hrv must not be negative")
	}
	for _, ev := range in.Events {
		if ev.End.Before(ev.Start) {
			return BrakeCheck{}, invalidArg("event end before start")
		}
	}
	return e.evaluate(ctx, userID, in)
}

func (e Engine) evaluate(ctx context.Context, userID string, in cycle.Inputs) (BrakeCheck, error) {
	var out BrakeCheck
	err := e.withState(ctx, userID, func(_ *sql.Tx, _ domain.User, st *cycle.State, now time.Time) error {
		d := st.ShouldDisplay(now, in)
		hrv := in.CurrentHRV
		day := st.Day(now)
		out = BrakeCheck{
			ShouldDisplay:   d.Show,
			EventID:         d.EventID,
			CurrentDay:      day,
			Phase:           string(cycle.PhaseOf(day)),
			HRVCurrent:      &hrv,
			HRVBaselineMean: st.Baseline.Mean,
			Timestamp:       formatTime(now),
		}
		return nil
	})
	if err != nil {
		return BrakeCheck{}, err
	}
	e.log().Info("brake check", "user_id", userID, "should_display", out.ShouldDisplay, "day", out.CurrentDay)
	return out, nil
}

// CheckBrake fetches the user's current HRV, 7-day window and upcoming events
// concurrently and evaluates the gate on them.
func (e Engine) CheckBrake(ctx context.Context, p auth.Principal, userID string) (BrakeCheck, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermStateEvaluate); err != nil {
		return BrakeCheck{}, err
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return BrakeCheck{}, err
	}
	src, err := e.Sources.ForUser(ctx, u)
	if err != nil {
		return BrakeCheck{}, err
	}
	now := e.now()

	var (
		latest  *cycle.HRVSample
		samples []cycle.HRVSample
		evs     []cycle.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		latest, err = src.HRV.Latest(gctx, now)
		return err
	})
	g.Go(func() error {
		var err error
		samples, err = src.HRV.Window(gctx, now.Add(-baselineWindow), now)
		return err
	})
	g.Go(func() error {
		var err error
		evs, err = src.Calendar.Events(gctx, now, now.Add(e.lookahead()))
		return err
	})
	if err := g.Wait(); err != nil {
		e.log().Warn("source fetch failed", "user_id", userID, "error", err)
		if errors.Is(err, sources.ErrUnavailable) || errors.Is(err, sources.ErrNotConnected) {
			return BrakeCheck{}, err
		}
		return BrakeCheck{}, fmt.Errorf("%w: %v", sources.ErrUnavailable, err)
	}

	if latest == nil {
		var out BrakeCheck
		err := e.withState(ctx, userID, func(_ *sql.Tx, _ domain.User, st *cycle.State, now time.Time) error {
			day := st.Day(now)
			out = BrakeCheck{Reason: ReasonNoHRV, CurrentDay: day, Phase: string(cycle.PhaseOf(day)), Timestamp: formatTime(now)}
			return nil
		})
		return out, err
	}
	return e.evaluate(ctx, userID, cycle.Inputs{CurrentHRV: latest.Value, Samples: samples, Events: evs})
}

// RecordDecision applies a Proceed or Delay response and logs the decision record.
func (e Engine) RecordDecision(ctx context.Context, p auth.Principal, userID, decisionType string) (DecisionResult, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermDecisionWrite); err != nil {
		return DecisionResult{}, err
	}
	d, err := cycle.ParseDecision(decisionType)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var out DecisionResult
	err = e.withState(ctx, userID, func(tx *sql.Tx, _ domain.User, st *cycle.State, now time.Time) error {
		outcome, err := st.OnBrakeResponse(d, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		rec, err := e.Records.AppendDecision(ctx, tx, userID, outcome.Record)
		if err != nil {
			return fmt.Errorf("record decision: %w", err)
		}
		out = DecisionResult{
			Status:        "decision_recorded",
			DecisionType:  string(d),
			Timestamp:     rec.Timestamp,
			NextAction:    outcome.Status,
			RetriggerTime: formatTimePtr(outcome.RetriggerAt),
			Record:        rec,
		}
		return nil
	})
	if err != nil {
		return DecisionResult{}, err
	}
	e.log().Info("decision recorded", "user_id", userID, "decision_type", string(d), "day", out.Record.Day)
	return out, nil
}

// RecordReflection stores the day-7 answer and immediately starts the next cycle.
func (e Engine) RecordReflection(ctx context.Context, p auth.Principal, userID, response string) (ReflectionResult, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermReflectionWrite); err != nil {
		return ReflectionResult{}, err
	}
	r, err := cycle.ParseReflection(response)
	if err != nil {
		return ReflectionResult{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	var out ReflectionResult
	err = e.withState(ctx, userID, func(tx *sql.Tx, u domain.User, st *cycle.State, now time.Time) error {
		if st.Phase(now) != cycle.PhaseReflection {
			return fmt.Errorf("%w: reflections are accepted on day %d only, current day is %d", ErrInvalidState, cycle.DaysPerCycle, st.Day(now))
		}
		outcome := st.OnReflection(r, now)
		rec, err := e.Records.AppendReflection(ctx, tx, userID, outcome.Record)
		if err != nil {
			return fmt.Errorf("record reflection: %w", err)
		}
		st.ResetCycle(now)
		out = ReflectionResult{
			Status:         "reflection_recorded",
			Response:       string(r),
			Timestamp:      rec.Timestamp,
			NextCycleStart: formatTime(outcome.NextCycleStart),
			Record:         rec,
			State:          e.summarize(u, *st, now),
		}
		return nil
	})
	if err != nil {
		return ReflectionResult{}, err
	}
	e.log().Info("reflection recorded", "user_id", userID, "response", string(r))
	return out, nil
}

// ResetCycle starts a new cycle at now regardless of the current phase.
func (e Engine) ResetCycle(ctx context.Context, p auth.Principal, userID string) (StateSummary, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermCycleReset); err != nil {
		return StateSummary{}, err
	}
	var out StateSummary
	err := e.withState(ctx, userID, func(_ *sql.Tx, u domain.User, st *cycle.State, now time.Time) error {
		st.ResetCycle(now)
		out = e.summarize(u, *st, now)
		return nil
	})
	if err != nil {
		return StateSummary{}, err
	}
	e.log().Info("cycle reset", "user_id", userID)
	return out, nil
}

// ResetDueCycles resets every cycle whose reset boundary (the first 00:00 UTC
// after day 7 ends) has passed.
func (e Engine) ResetDueCycles(ctx context.Context) (int, error) {
	return e.resetDueCycles(ctx, auth.System)
}

func (e Engine) resetDueCycles(ctx context.Context, p auth.Principal) (int, error) {
	if err := e.Auth.Authorize(p, "", auth.PermCycleSweep); err != nil {
		return 0, err
	}
	recs, err := e.Repo.ListStates(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range recs {
		st, err := fromRecord(rec)
		if err != nil {
			e.log().Warn("skipping unreadable state", "user_id", rec.UserID, "error", err)
			continue
		}
		if e.now().Before(cycle.ResetBoundary(st.CycleStart)) {
			continue
		}
		reset := false
		err = e.withState(ctx, rec.UserID, func(_ *sql.Tx, _ domain.User, st *cycle.State, now time.Time) error {
			// re-checked under the lock; a reflection may have reset it meanwhile
			if now.Before(cycle.ResetBoundary(st.CycleStart)) {
				return nil
			}
			anchor := cycle.ResetBoundary(st.CycleStart)
			for !now.Before(cycle.ResetBoundary(anchor)) {
				anchor = cycle.ResetBoundary(anchor)
			}
			st.ResetCycle(anchor)
			reset = true
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("reset %s: %w", rec.UserID, err)
		}
		if reset {
			count++
		}
	}
	return count, nil
}

// SweepCycles is ResetDueCycles on behalf of a caller, who must be an admin.
func (e Engine) SweepCycles(ctx context.Context, p auth.Principal) (int, error) {
	return e.resetDueCycles(ctx, p)
}
