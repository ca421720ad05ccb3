package repo

import (
	"context"
	"database/sql"
	"errors"

	"omtobe/internal/domain"
)

const userColumns = `id,email,timezone,COALESCE(healthkit_token,''),COALESCE(calendar_token,''),created_at,updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Timezone, &u.HealthKitToken, &u.CalendarToken, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUser stores a user. Duplicate ids or emails yield ErrConflict.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	if u.ID == "" || u.Email == "" {
		return errors.New("id and email required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,email,timezone,healthkit_token,calendar_token,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.Timezone, nullable(u.HealthKitToken), nullable(u.CalendarToken), u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateUserTokens replaces the source tokens that are non-nil.
func (r Repo) UpdateUserTokens(ctx context.Context, id string, healthKit, calendar *string, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET
  healthkit_token=CASE WHEN ? THEN ? ELSE healthkit_token END,
  calendar_token=CASE WHEN ? THEN ? ELSE calendar_token END,
  updated_at=? WHERE id=?`,
		healthKit != nil, nullableStringPtr(healthKit), calendar != nil, nullableStringPtr(calendar), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
