// Package events appends the two analytics records the service keeps. The writer
// only accepts cycle record types, so nothing beyond timestamp, choice and cycle
// position can reach storage.
package events

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"omtobe/internal/cycle"
	"omtobe/internal/domain"
	"omtobe/internal/repo"
)

type Writer struct {
	Repo repo.Repo
}

func (w Writer) AppendDecision(ctx context.Context, tx *sql.Tx, userID string, rec cycle.DecisionRecord) (domain.DecisionLog, error) {
	if userID == "" {
		return domain.DecisionLog{}, errors.New("user_id required")
	}
	if _, err := cycle.ParseDecision(string(rec.Type)); err != nil {
		return domain.DecisionLog{}, err
	}
	if rec.Day < 1 || rec.Day > cycle.DaysPerCycle {
		return domain.DecisionLog{}, errors.New("day out of range")
	}
	entry := domain.DecisionLog{
		ID:           uuid.NewString(),
		UserID:       userID,
		Timestamp:    rec.Timestamp.UTC().Format(domain.TimeFormat),
		DecisionType: string(rec.Type),
		Day:          rec.Day,
	}
	if err := w.Repo.InsertDecisionTx(ctx, tx, entry); err != nil {
		return domain.DecisionLog{}, err
	}
	return entry, nil
}

func (w Writer) AppendReflection(ctx context.Context, tx *sql.Tx, userID string, rec cycle.ReflectionRecord) (domain.ReflectionLog, error) {
	if userID == "" {
		return domain.ReflectionLog{}, errors.New("user_id required")
	}
	if _, err := cycle.ParseReflection(string(rec.Response)); err != nil {
		return domain.ReflectionLog{}, err
	}
	entry := domain.ReflectionLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Timestamp:  rec.Timestamp.UTC().Format(domain.TimeFormat),
		Response:   string(rec.Response),
		CycleStart: rec.CycleStart.UTC().Format(domain.TimeFormat),
	}
	if err := w.Repo.InsertReflectionTx(ctx, tx, entry); err != nil {
		return domain.ReflectionLog{}, err
	}
	return entry, nil
}
