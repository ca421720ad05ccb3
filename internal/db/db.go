// Package db locates and opens the workspace SQLite database.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	stateDir = ".omtobe"
	dbFile   = "omtobe.db"
)

type Config struct {
	Workspace string
	// MaxOpenConns caps the pool; 0 leaves the driver default.
	MaxOpenConns int
}

func workspaceDir(workspace string) string {
	if workspace == "" {
		return "."
	}
	return workspace
}

// EnsureWorkspace creates <workspace>/.omtobe and returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspaceDir(workspace), stateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}

// Path returns the database file for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspaceDir(workspace), stateDir, dbFile)
}

// Open opens the database with foreign keys, WAL and a busy timeout so the
// scheduler and request handlers can share the file.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	conn, err := sql.Open("sqlite", "file:"+Path(cfg.Workspace)+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return conn, nil
}
