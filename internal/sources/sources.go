// Package sources defines the HRV and calendar inputs of a brake check and
// picks the adapters for a user.
package sources

import (
	"context"
	"errors"
	"time"

	"omtobe/internal/cycle"
	"omtobe/internal/domain"
)

var (
	// ErrNotConnected means the user has not linked a required source.
	ErrNotConnected = errors.New("source not connected")
	// ErrUnavailable wraps transport or upstream failures.
	ErrUnavailable = errors.New("source unavailable")
)

// HRV yields heart-rate-variability samples.
type HRV interface {
	// Latest returns the most recent sample at or before now, or nil when there is none.
	Latest(ctx context.Context, now time.Time) (*cycle.HRVSample, error)
	// Window returns the samples in [start, end].
	Window(ctx context.Context, start, end time.Time) ([]cycle.HRVSample, error)
}

// Calendar yields events overlapping [start, end].
type Calendar interface {
	Events(ctx context.Context, start, end time.Time) ([]cycle.Event, error)
}

// Set is the pair of sources used for one user.
type Set struct {
	HRV      HRV
	Calendar Calendar
}

// Provider resolves the sources for a user.
type Provider interface {
	ForUser(ctx context.Context, u domain.User) (Set, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, u domain.User) (Set, error)

func (f ProviderFunc) ForUser(ctx context.Context, u domain.User) (Set, error) {
	return f(ctx, u)
}

// Static returns the same set for every user.
func Static(set Set) Provider {
	return ProviderFunc(func(context.Context, domain.User) (Set, error) { return set, nil })
}
