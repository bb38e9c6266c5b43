package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-social/waypoint/libs/domain"
)

func fastConfig() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Millisecond}
}

func TestWithRetrySucceedsFirstTry(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestWithRetryConvergesAfterConflicts(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), fastConfig(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", domain.ConcurrencyConflict("version mismatch")
		}
		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsIntoTooManyConflicts(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		return 0, domain.ConcurrencyConflict("always conflicting")
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeTooManyConflicts, domain.CodeOf(err))
	assert.Equal(t, 4, calls, "MaxRetries=3 means exactly 4 attempts")
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", domain.NotFound("account", "a-1")},
		{"already exists", domain.AlreadyExists("account", "email", "x@y.z")},
		{"infrastructure", domain.Infrastructure("db down", errors.New("dial"))},
		{"plain", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := WithRetry(context.Background(), fastConfig(), func(context.Context) (int, error) {
				calls++
				return 0, tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestWithRetryHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Hour}

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = WithRetry(ctx, cfg, func(context.Context) (int, error) {
			calls++
			return 0, domain.ConcurrencyConflict("v")
		})
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetryBackoffGrows(t *testing.T) {
	cfg := Config{MaxRetries: 2, InitialBackoff: 10 * time.Millisecond}
	start := time.Now()
	_, err := WithRetry(context.Background(), cfg, func(context.Context) (int, error) {
		return 0, domain.ConcurrencyConflict("v")
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	// Two sleeps: 10ms and 20ms minimum, before jitter.
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}
