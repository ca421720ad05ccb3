package repo

import (
	"context"
	"database/sql"

	"omtobe/internal/domain"
)

func (r Repo) InsertDecisionTx(ctx context.Context, tx *sql.Tx, d domain.DecisionLog) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO decision_logs(id,user_id,timestamp,decision_type,day) VALUES (?,?,?,?,?)`,
		d.ID, d.UserID, d.Timestamp, d.DecisionType, d.Day)
	return err
}

// ListDecisions returns the newest decisions first.
func (r Repo) ListDecisions(ctx context.Context, userID string, limit int) ([]domain.DecisionLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,timestamp,decision_type,day FROM decision_logs WHERE user_id=? ORDER BY timestamp DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DecisionLog{}
	for rows.Next() {
		var d domain.DecisionLog
		if err := rows.Scan(&d.ID, &d.UserID, &d.Timestamp, &d.DecisionType, &d.Day); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) InsertReflectionTx(ctx context.Context, tx *sql.Tx, l domain.ReflectionLog) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO reflection_logs(id,user_id,timestamp,response,cycle_start) VALUES (?,?,?,?,?)`,
		l.ID, l.UserID, l.Timestamp, l.Response, l.CycleStart)
	return err
}

// ListReflections returns the newest reflections first.
func (r Repo) ListReflections(ctx context.Context, userID string, limit int) ([]domain.ReflectionLog, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,user_id,timestamp,response,cycle_start FROM reflection_logs WHERE user_id=? ORDER BY timestamp DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.ReflectionLog{}
	for rows.Next() {
		var l domain.ReflectionLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Timestamp, &l.Response, &l.CycleStart); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
