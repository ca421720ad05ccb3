package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"omtobe/internal/config"
	"omtobe/internal/db"
	"omtobe/internal/engine"
	"omtobe/internal/lock"
	"omtobe/internal/logger"
	"omtobe/internal/migrate"
)

// Open loads the workspace config (defaults when absent), opens the database
// and applies migrations.
func Open(workspace string) (*sql.DB, *config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, cfg, nil
}

// BuildEngine wires the engine's lock backend and logger from cfg. The
// returned func releases backend connections.
func BuildEngine(ctx context.Context, conn *sql.DB, cfg *config.Config, log *logger.Logger) (engine.Engine, func(), error) {
	eng := engine.New(conn, cfg)
	if log != nil {
		eng.Log = log
	}
	cleanup := func() {}
	if cfg.Lock.Backend == config.LockRedis {
		ttl := time.Duration(cfg.Lock.TTLSeconds) * time.Second
		rl, err := lock.NewRedis(ctx, cfg.Lock.RedisAddr, ttl)
		if err != nil {
			return engine.Engine{}, nil, err
		}
		eng.Locks = rl
		cleanup = func() { _ = rl.Close() }
		eng.Log.Info("redis lock enabled", "addr", cfg.Lock.RedisAddr)
	}
	return eng, cleanup, nil
}
