package events

import (
	"context"
	"testing"
	"time"

	"omtobe/internal/cycle"
	"omtobe/internal/db"
	"omtobe/internal/domain"
	"omtobe/internal/migrate"
	"omtobe/internal/repo"
)

func newWriter(t *testing.T) Writer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	stamp := "2024-01-01T00:00:00.000000000Z"
	if err := r.InsertUser(context.Background(), nil, domain.User{ID: "u1", Email: "u1@example.com", CreatedAt: stamp, UpdatedAt: stamp}); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return Writer{Repo: r}
}

func TestAppendDecisionValidates(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 3, 10, 0, 0, 0, time.FixedZone("JST", 9*3600))

	got, err := w.AppendDecision(ctx, nil, "u1", cycle.DecisionRecord{Timestamp: now, Type: cycle.DecisionProceed, Day: 3})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got.ID == "" || got.Timestamp != "2024-01-03T01:00:00.000000000Z" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if _, err := w.AppendDecision(ctx, nil, "u1", cycle.DecisionRecord{Timestamp: now, Type: "Later", Day: 3}); err == nil {
		t.Fatalf("expected unknown decision type to fail")
	}
	if _, err := w.AppendDecision(ctx, nil, "u1", cycle.DecisionRecord{Timestamp: now, Type: cycle.DecisionDelay, Day: 9}); err == nil {
		t.Fatalf("expected out of range day to fail")
	}
	if _, err := w.AppendDecision(ctx, nil, "", cycle.DecisionRecord{Timestamp: now, Type: cycle.DecisionDelay, Day: 3}); err == nil {
		t.Fatalf("expected missing user to fail")
	}
}

func TestAppendReflection(t *testing.T) {
	w := newWriter(t)
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	got, err := w.AppendReflection(context.Background(), nil, "u1", cycle.ReflectionRecord{Timestamp: start.Add(6 * 24 * time.Hour), Response: cycle.ReflectionSkip, CycleStart: start})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got.Response != "Skip" || got.CycleStart != "2024-01-01T08:00:00.000000000Z" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if _, err := w.AppendReflection(context.Background(), nil, "u1", cycle.ReflectionRecord{Timestamp: start, Response: "Maybe", CycleStart: start}); err == nil {
		t.Fatalf("expected invalid response to fail")
	}
}
