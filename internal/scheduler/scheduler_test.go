package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	calls int32
	fail  bool
}

func (c *countingSweeper) ResetDueCycles(context.Context) (int, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.fail {
		return 0, errors.New("boom")
	}
	return 1, nil
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	sw := &countingSweeper{}
	s := &Scheduler{Sweeper: sw, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&sw.calls) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated sweeps, got %d", atomic.LoadInt32(&sw.calls))
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestRunSurvivesSweepErrors(t *testing.T) {
	sw := &countingSweeper{fail: true}
	s := &Scheduler{Sweeper: sw, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if atomic.LoadInt32(&sw.calls) < 2 {
		t.Fatalf("expected sweeps to continue after errors")
	}
}
