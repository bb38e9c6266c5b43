package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-social/waypoint/libs/domain"
)

// memStore mimics the SQL claim cycle: unprocessed rows below the attempt
// cap are claimed oldest-first, the claim is exclusive for its duration,
// failures bump attempts, successes set processed.
type memRow struct {
	env       domain.Envelope
	attempts  int
	lastError string
	processed bool
}

type memStore struct {
	mu   sync.Mutex
	rows []*memRow
}

func (s *memStore) add(aggregateID string) uuid.UUID {
	id := uuid.New()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, &memRow{env: domain.Envelope{
		ID:            id,
		AggregateType: "account",
		AggregateID:   aggregateID,
		EventType:     "account.updated",
		Payload:       json.RawMessage(`{}`),
		OccurredAt:    time.Now().UTC(),
	}})
	return id
}

func (s *memStore) ProcessBatch(ctx context.Context, limit int, publish PublishFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var batch []*memRow
	var envs []domain.Envelope
	for _, r := range s.rows {
		if r.processed || r.attempts >= MaxAttempts {
			continue
		}
		batch = append(batch, r)
		envs = append(envs, r.env)
		if len(batch) == limit {
			break
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := publish(ctx, envs); err != nil {
		for _, r := range batch {
			r.attempts++
			r.lastError = err.Error()
		}
		return 0, err
	}
	for _, r := range batch {
		r.processed = true
	}
	return len(batch), nil
}

func (s *memStore) unprocessed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if !r.processed {
			n++
		}
	}
	return n
}

type recordingProducer struct {
	mu        sync.Mutex
	published [][]uuid.UUID
	failures  int
}

func (p *recordingProducer) PublishBatch(_ context.Context, envs []domain.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	ids := make([]uuid.UUID, 0, len(envs))
	for _, env := range envs {
		ids = append(ids, env.ID)
	}
	p.published = append(p.published, ids)
	return nil
}

func (p *recordingProducer) deliveries() map[uuid.UUID]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := map[uuid.UUID]int{}
	for _, batch := range p.published {
		for _, id := range batch {
			counts[id]++
		}
	}
	return counts
}

// scriptedStore returns a fixed sequence of batch sizes and records when
// each call happened.
type scriptedStore struct {
	mu      sync.Mutex
	script  []int
	callAt  []time.Time
	partial chan struct{} // closed after the script runs out
}

func (s *scriptedStore) ProcessBatch(context.Context, int, PublishFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callAt = append(s.callAt, time.Now())
	if len(s.script) == 0 {
		return 0, nil
	}
	n := s.script[0]
	s.script = s.script[1:]
	if len(s.script) == 0 && s.partial != nil {
		close(s.partial)
		s.partial = nil
	}
	return n, nil
}

func (s *scriptedStore) calls() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.callAt...)
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestRelayDrainsFullBatchesWithoutSleeping(t *testing.T) {
	done := make(chan struct{})
	store := &scriptedStore{script: []int{2, 2, 1}, partial: done}
	relay := NewRelay(store, &recordingProducer{}, discard(), RelayConfig{
		BatchSize:       2,
		PollingInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		relay.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("full batches should be drained back-to-back, not paced by the interval")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("relay did not honor shutdown during sleep")
	}

	calls := store.calls()
	require.Len(t, calls, 3)
	assert.Less(t, calls[2].Sub(calls[0]), 500*time.Millisecond)
}

func TestRelaySleepsAfterPartialBatch(t *testing.T) {
	store := &scriptedStore{script: []int{1, 1, 1, 1, 1, 1}}
	interval := 60 * time.Millisecond
	relay := NewRelay(store, &recordingProducer{}, discard(), RelayConfig{
		BatchSize:       2,
		PollingInterval: interval,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	relay.Run(ctx)

	calls := store.calls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), interval-10*time.Millisecond,
		"partial batch must wait out the poll interval")
}

func TestRelayRetriesFailedPublishes(t *testing.T) {
	store := &memStore{}
	id := store.add("a-1")

	producer := &recordingProducer{failures: 2}
	relay := NewRelay(store, producer, discard(), RelayConfig{
		BatchSize:       10,
		PollingInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		relay.Run(ctx)
	}()

	require.Eventually(t, func() bool { return store.unprocessed() == 0 },
		2*time.Second, 5*time.Millisecond, "row never relayed")
	cancel()
	<-stopped

	store.mu.Lock()
	row := store.rows[0]
	store.mu.Unlock()
	assert.Equal(t, 2, row.attempts, "each failed publish bumps attempts")
	assert.Equal(t, "broker unavailable", row.lastError)
	assert.True(t, row.processed)
	assert.Equal(t, 1, producer.deliveries()[id])
}

func TestRelayStopsPollingAfterAttemptCap(t *testing.T) {
	store := &memStore{}
	store.add("dead")

	producer := &recordingProducer{failures: 1 << 30} // always failing
	relay := NewRelay(store, producer, discard(), RelayConfig{
		BatchSize:       10,
		PollingInterval: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		relay.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.rows[0].attempts >= MaxAttempts
	}, 2*time.Second, time.Millisecond)
	cancel()
	<-stopped

	store.mu.Lock()
	row := store.rows[0]
	store.mu.Unlock()
	assert.Equal(t, MaxAttempts, row.attempts,
		"row must leave the polling set once the cap is reached, attempts frozen")
	assert.False(t, row.processed, "dead row stays visible as unprocessed for inspection")
}

func TestCompetingRelaysNeverDoubleClaim(t *testing.T) {
	store := &memStore{}
	const rows = 40
	for i := 0; i < rows; i++ {
		store.add("agg")
	}

	producer := &recordingProducer{}
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		relay := NewRelay(store, producer, discard(), RelayConfig{
			BatchSize:       5,
			PollingInterval: time.Millisecond,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	}

	require.Eventually(t, func() bool { return store.unprocessed() == 0 },
		2*time.Second, time.Millisecond)
	cancel()
	wg.Wait()

	counts := producer.deliveries()
	require.Len(t, counts, rows)
	for id, n := range counts {
		assert.Equal(t, 1, n, "row %s published by more than one worker", id)
	}
}
