package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"omtobe/internal/config"
	"omtobe/internal/db"
	"omtobe/internal/lock"
	"omtobe/internal/logger"
	"omtobe/internal/migrate"
)

func TestOpenWithDefaults(t *testing.T) {
	dir := t.TempDir()
	conn, cfg, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if cfg.Sources.Mode != config.SourcesMock {
		t.Fatalf("expected default config")
	}
	if _, err := os.Stat(db.Path(dir)); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	if v, err := migrate.Current(conn); err != nil || v != migrate.Latest() {
		t.Fatalf("expected migrated schema, got %d %v", v, err)
	}

	eng, cleanup, err := BuildEngine(context.Background(), conn, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	defer cleanup()
	if _, ok := eng.Locks.(*lock.Local); !ok {
		t.Fatalf("expected local lock, got %T", eng.Locks)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "omtobe.yml"), []byte("sources:\n  mode: bogus\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Open(dir); err == nil {
		t.Fatalf("expected config error")
	}
}
