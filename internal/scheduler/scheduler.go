// Package scheduler periodically resets cycles whose day 7 has ended, at the next 00:00 UTC.
package scheduler

import (
	"context"
	"time"

	"omtobe/internal/logger"
)

const defaultInterval = time.Minute

// Sweeper resets every due cycle and reports how many were reset.
type Sweeper interface {
	ResetDueCycles(ctx context.Context) (int, error)
}

type Scheduler struct {
	Sweeper  Sweeper
	Interval time.Duration
	Log      *logger.Logger
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	log := s.Log
	if log == nil {
		log = logger.Nop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep(ctx, log)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx, log)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context, log *logger.Logger) {
	n, err := s.Sweeper.ResetDueCycles(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("cycle sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		log.Info("cycles reset", "count", n)
	}
}
