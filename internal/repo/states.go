package repo

import (
	"context"
	"database/sql"

	"omtobe/internal/domain"
)

const stateColumns = `user_id,cycle_start,cooling_period_active,cooling_period_start,decision_locked_for_event,last_brake_display_time,baseline_mean,baseline_std_dev,baseline_samples,updated_at`

func scanState(row interface{ Scan(...any) error }) (domain.StateRecord, error) {
	var s domain.StateRecord
	var coolingStart, lockedFor, lastDisplay sql.NullString
	err := row.Scan(&s.UserID, &s.CycleStart, &s.CoolingPeriodActive, &coolingStart, &lockedFor, &lastDisplay,
		&s.BaselineMean, &s.BaselineStdDev, &s.BaselineSamples, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.CoolingPeriodStart = stringPtr(coolingStart)
	s.DecisionLockedForEvent = stringPtr(lockedFor)
	s.LastBrakeDisplayTime = stringPtr(lastDisplay)
	return s, nil
}

func (r Repo) GetState(ctx context.Context, userID string) (domain.StateRecord, error) {
	return scanState(r.DB.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM cycle_states WHERE user_id=?`, userID))
}

func (r Repo) GetStateTx(ctx context.Context, tx *sql.Tx, userID string) (domain.StateRecord, error) {
	return scanState(tx.QueryRowContext(ctx, `SELECT `+stateColumns+` FROM cycle_states WHERE user_id=?`, userID))
}

// UpsertStateTx writes the full state row; every column is overwritten.
func (r Repo) UpsertStateTx(ctx context.Context, tx *sql.Tx, s domain.StateRecord) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO cycle_states(`+stateColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET
  cycle_start=excluded.cycle_start,
  cooling_period_active=excluded.cooling_period_active,
  cooling_period_start=excluded.cooling_period_start,
  decision_locked_for_event=excluded.decision_locked_for_event,
  last_brake_display_time=excluded.last_brake_display_time,
  baseline_mean=excluded.baseline_mean,
  baseline_std_dev=excluded.baseline_std_dev,
  baseline_samples=excluded.baseline_samples,
  updated_at=excluded.updated_at`,
		s.UserID, s.CycleStart, s.CoolingPeriodActive, nullableStringPtr(s.CoolingPeriodStart), nullableStringPtr(s.DecisionLockedForEvent),
		nullableStringPtr(s.LastBrakeDisplayTime), s.BaselineMean, s.BaselineStdDev, s.BaselineSamples, s.UpdatedAt)
	return err
}

// ListStates returns every persisted state, used by the reset sweep.
func (r Repo) ListStates(ctx context.Context) ([]domain.StateRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stateColumns+` FROM cycle_states ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StateRecord
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
