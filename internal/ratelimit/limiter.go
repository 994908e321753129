// Package ratelimit implements a fixed-window request limiter with a
// pluggable counter store. Counters live in coarse windows keyed by
// truncated time, and stale windows are reclaimed by a probabilistic sweep
// piggybacked on regular traffic instead of a background goroutine.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Store persists per-client counters for fixed windows. Implementations
// must be safe for concurrent use.
type Store interface {
	// Increment adds one hit for the client in the given window and
	// returns the resulting count.
	Increment(ctx context.Context, clientKey string, window int64) (int, error)

	// Sweep removes every counter whose window is older than cutoff.
	Sweep(ctx context.Context, cutoff int64) error
}

// Windows older than this many periods are eligible for sweeping.
const staleWindows = 2

const sweepProbability = 0.1

// Limiter bounds each client to a fixed number of requests per window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger

	now func() time.Time
	rnd func() float64
}

// New creates a limiter allowing limit requests per window per client.
func New(store Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
		rnd:    rand.Float64,
	}
}

// Allow reports whether the client may proceed. Store failures fail open:
// a broken counter store degrades to unlimited traffic rather than an
// outage, with the failure logged.
func (l *Limiter) Allow(ctx context.Context, clientKey string) bool {
	window := l.now().Unix() / int64(l.window.Seconds())

	count, err := l.store.Increment(ctx, clientKey, window)
	if err != nil {
		l.logger.Error("rate limit store failure, allowing request",
			"client", clientKey, "error", err)
		return true
	}

	if l.rnd() < sweepProbability {
		if err := l.store.Sweep(ctx, window-staleWindows); err != nil {
			l.logger.Warn("rate limit sweep failed", "error", err)
		}
	}

	return count <= l.limit
}
