package kafkax

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-social/waypoint/libs/domain"
)

type fakeReader struct {
	msgs chan kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg, ok := <-r.msgs:
		if !ok {
			return kafka.Message{}, errors.New("reader closed")
		}
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) Close() error { return nil }

func envelopeMessage(t *testing.T, aggregateID string) kafka.Message {
	t.Helper()
	env := domain.Envelope{
		ID:            uuid.New(),
		AggregateType: "account",
		AggregateID:   aggregateID,
		EventType:     "account.updated",
		Payload:       json.RawMessage(`{}`),
		OccurredAt:    time.Now().UTC(),
	}
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(aggregateID), Value: value}
}

func testConsumer(reader messageReader, maxConcurrency int) *KafkaConsumer {
	c := NewConsumer(ConsumerConfig{Topic: "waypoint.events", MaxConcurrency: maxConcurrency},
		slog.New(slog.DiscardHandler))
	c.reader = reader
	return c
}

func TestConsumeDeliversEnvelopes(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	reader.msgs <- envelopeMessage(t, "a-1")
	reader.msgs <- envelopeMessage(t, "a-2")
	reader.msgs <- envelopeMessage(t, "a-3")

	ctx, cancel := context.WithCancel(context.Background())
	var seen sync.Map
	var count atomic.Int32

	c := testConsumer(reader, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Consume(ctx, func(_ context.Context, env domain.Envelope) error {
			seen.Store(env.AggregateID, true)
			if count.Add(1) == 3 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after cancellation")
	}

	for _, id := range []string{"a-1", "a-2", "a-3"} {
		_, ok := seen.Load(id)
		assert.True(t, ok, "missing envelope for %s", id)
	}
}

func TestConsumeIsolatesHandlerFailures(t *testing.T) {
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	reader.msgs <- envelopeMessage(t, "poison")
	reader.msgs <- kafka.Message{Value: []byte("not json")}
	reader.msgs <- envelopeMessage(t, "healthy")

	ctx, cancel := context.WithCancel(context.Background())
	var count atomic.Int32

	c := testConsumer(reader, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Consume(ctx, func(_ context.Context, env domain.Envelope) error {
			if count.Add(1) == 2 {
				cancel()
			}
			if env.AggregateID == "poison" {
				return errors.New("handler blew up")
			}
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a failing handler or bad message stalled the loop")
	}
	assert.Equal(t, int32(2), count.Load(), "both decodable messages handled")
}

func TestConsumeBoundsConcurrency(t *testing.T) {
	const total = 6
	reader := &fakeReader{msgs: make(chan kafka.Message, total)}
	for i := 0; i < total; i++ {
		reader.msgs <- envelopeMessage(t, "a")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inFlight, peak, handled atomic.Int32
	release := make(chan struct{})

	c := testConsumer(reader, 2)
	go func() {
		_ = c.Consume(ctx, func(context.Context, domain.Envelope) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			if handled.Add(1) == total {
				cancel()
			}
			return nil
		})
	}()

	// Let the gate fill up, then drain.
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	close(release)

	deadline := time.After(2 * time.Second)
	for handled.Load() < total {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d messages handled", handled.Load(), total)
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.LessOrEqual(t, peak.Load(), int32(2), "concurrency gate breached")
}
