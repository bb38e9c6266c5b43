package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/libs/kafkax"
)

// fakeCache is an in-memory Cache with glob invalidation.
type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) InvalidatePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(c.data, k)
		}
	}
	return nil
}

func (c *fakeCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.data))
	for k := range c.data {
		out = append(out, k)
	}
	return out
}

// chanConsumer feeds queued envelopes to the handler sequentially.
type chanConsumer struct {
	envs []domain.Envelope
}

func (c *chanConsumer) Consume(ctx context.Context, handler kafkax.Handler) error {
	for _, env := range c.envs {
		if ctx.Err() != nil {
			return nil
		}
		_ = handler(ctx, env)
	}
	return nil
}

func TestWorkerInvalidatesAggregatePrefixOnly(t *testing.T) {
	cacheStore := newFakeCache()
	ctx := context.Background()
	seed := map[string]string{
		"account:X":          "profile json",
		"account:X:settings": "settings json",
		"account:X2":         "neighbor starting with same prefix",
		"account:Y":          "other aggregate",
		"profile:X":          "same id, other aggregate type",
		"account_meta:X":     "unrelated namespace",
	}
	for k, v := range seed {
		require.NoError(t, cacheStore.Set(ctx, k, v, 0))
	}

	worker := NewWorker(&chanConsumer{envs: []domain.Envelope{{
		ID:            uuid.New(),
		AggregateType: "account",
		AggregateID:   "X",
		EventType:     "account.updated",
		Payload:       json.RawMessage(`{}`),
		OccurredAt:    time.Now().UTC(),
	}}}, cacheStore, slog.New(slog.DiscardHandler))

	require.NoError(t, worker.Run(ctx))

	remaining := cacheStore.keys()
	assert.ElementsMatch(t, []string{"account:Y", "profile:X", "account_meta:X"}, remaining,
		"only keys under account:X* may be removed")
}

func TestWorkerIsIdempotentOnDuplicateDelivery(t *testing.T) {
	cacheStore := newFakeCache()
	ctx := context.Background()
	require.NoError(t, cacheStore.Set(ctx, "account:X", "v", 0))

	env := domain.Envelope{
		ID:            uuid.New(),
		AggregateType: "account",
		AggregateID:   "X",
		EventType:     "account.updated",
		OccurredAt:    time.Now().UTC(),
	}
	worker := NewWorker(&chanConsumer{envs: []domain.Envelope{env, env, env}},
		cacheStore, slog.New(slog.DiscardHandler))

	require.NoError(t, worker.Run(ctx))
	assert.Empty(t, cacheStore.keys())
}
