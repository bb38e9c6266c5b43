// Package retry re-executes operations that lost an optimistic-concurrency
// race. Only ConcurrencyConflict errors are retried; everything else
// propagates immediately.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/waypoint-social/waypoint/libs/domain"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultConfig suits interactive use cases: worst case ~180ms of backoff.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: 20 * time.Millisecond}
}

// WithRetry invokes op until it succeeds, fails with a non-conflict error,
// or exhausts cfg.MaxRetries, at which point the conflict becomes a
// terminal TooManyConflicts. Backoff doubles per attempt with uniform
// jitter in [0, delay/4] so competing clients desynchronize.
func WithRetry[T any](ctx context.Context, cfg Config, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 20 * time.Millisecond
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !domain.IsConcurrencyConflict(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.InitialBackoff << attempt
		delay += rand.N(delay/4 + 1)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	return zero, domain.TooManyConflicts(
		fmt.Sprintf("operation failed after %d retries due to persistent conflicts", cfg.MaxRetries))
}
