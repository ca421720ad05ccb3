package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"omtobe/internal/config"
	"omtobe/internal/cycle"
	"omtobe/internal/domain"
	"omtobe/internal/engine/auth"
	"omtobe/internal/events"
	"omtobe/internal/lock"
	"omtobe/internal/logger"
	"omtobe/internal/repo"
	"omtobe/internal/sources"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the current phase.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidArgument wraps input validation failures.
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
	baselineWindow      = cycle.DaysPerCycle * 24 * time.Hour
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Records events.Writer
	Auth    auth.Service
	Config  *config.Config
	Sources sources.Provider
	Locks   lock.Locker
	Log     *logger.Logger
	Now     func() time.Time
}

// New builds an engine with in-process locking and the sources selected by cfg.
func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:      db,
		Repo:    r,
		Records: events.Writer{Repo: r},
		Config:  cfg,
		Sources: sources.FromConfig(cfg.Sources),
		Locks:   lock.NewLocal(),
		Log:     logger.Nop(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Nop()
}

func (e Engine) reflectionHour() int {
	if e.Config == nil {
		return cycle.ReflectionHour
	}
	return e.Config.Reflection.Hour
}

func (e Engine) lookahead() time.Duration {
	if e.Config == nil || e.Config.Sources.Calendar.LookaheadHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(e.Config.Sources.Calendar.LookaheadHours) * time.Hour
}

func invalidArg(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// CreateUserOptions are parameters for creating a user.
type CreateUserOptions struct {
	ID             string
	Email          string
	Timezone       string
	HealthKitToken string
	CalendarToken  string
}

// CreateUser registers a user and starts their first cycle.
func (e Engine) CreateUser(ctx context.Context, opts CreateUserOptions) (domain.User, error) {
	email := strings.TrimSpace(opts.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, invalidArg("valid email is required")
	}
	tz := strings.TrimSpace(opts.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return domain.User{}, invalidArg("unknown timezone %q", tz)
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	now := e.now()
	ts := now.Format(time.RFC3339)
	u := domain.User{
		ID:             id,
		Email:          email,
		Timezone:       tz,
		HealthKitToken: opts.HealthKitToken,
		CalendarToken:  opts.CalendarToken,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Repo.UpsertStateTx(ctx, tx, toRecord(id, cycle.NewState(now), now)); err != nil {
		return domain.User{}, fmt.Errorf("init state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	e.log().Info("user created", "user_id", id, "timezone", tz)
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, p auth.Principal, userID string) (domain.User, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermUserRead); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, userID)
}

// ConnectSources replaces the stored source tokens that are non-nil.
func (e Engine) ConnectSources(ctx context.Context, p auth.Principal, userID string, healthKit, calendar *string) (domain.User, error) {
	if err := e.Auth.Authorize(p, userID, auth.PermUserRead); err != nil {
		return domain.User{}, err
	}
	if err := e.Repo.UpdateUserTokens(ctx, userID, healthKit, calendar, e.now().Format(time.RFC3339)); err != nil {
		return domain.User{}, err
	}
	e.log().Info("sources updated", "user_id", userID, "healthkit", healthKit != nil, "calendar", calendar != nil)
	return e.Repo.GetUser(ctx, userID)
}

// withState runs fn on the user's state inside one transaction while holding
// the user's lock, then persists whatever fn left in st.
func (e Engine) withState(ctx context.Context, userID string, fn func(tx *sql.Tx, u domain.User, st *cycle.State, now time.Time) error) error {
	release, err := e.Locks.Acquire(ctx, userID)
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	defer release()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetUserTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	now := e.now()
	st, err := e.loadStateTx(ctx, tx, userID, now)
	if err != nil {
		return err
	}
	if err := fn(tx, u, &st, now); err != nil {
		return err
	}
	if err := e.Repo.UpsertStateTx(ctx, tx, toRecord(userID, st, now)); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return tx.Commit()
}

func (e Engine) loadStateTx(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (cycle.State, error) {
	rec, err := e.Repo.GetStateTx(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return cycle.NewState(now), nil
	}
	if err != nil {
		return cycle.State{}, err
	}
	return fromRecord(rec)
}
