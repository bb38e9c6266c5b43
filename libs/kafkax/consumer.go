package kafkax

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/waypoint-social/waypoint/libs/domain"
)

// Handler processes one envelope. Returning an error marks the message as
// failed in the logs; it never stops the consume loop.
type Handler func(ctx context.Context, env domain.Envelope) error

// Consumer subscribes to the configured topic and feeds envelopes to a
// handler under a bounded concurrency gate.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topic   string
	// MaxConcurrency caps in-flight handler goroutines (default 500).
	MaxConcurrency int
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConsumer struct {
	cfg    ConsumerConfig
	logger *slog.Logger
	sem    *semaphore.Weighted

	// reader is swapped in tests; nil means build one from cfg.
	reader messageReader
}

func NewConsumer(cfg ConsumerConfig, logger *slog.Logger) *KafkaConsumer {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 500
	}
	return &KafkaConsumer{
		cfg:    cfg,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
}

// Consume reads until ctx is cancelled. A handler failure or an
// undecodable message is logged and skipped; one poisoned message cannot
// stall the stream. On shutdown, in-flight handlers run to completion but
// no new ones start.
func (c *KafkaConsumer) Consume(ctx context.Context, handler Handler) error {
	reader := c.reader
	if reader == nil {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  SplitBrokers(c.cfg.Brokers),
			GroupID:  c.cfg.GroupID,
			Topic:    c.cfg.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	defer reader.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		var env domain.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			c.logger.Error("undecodable envelope skipped", "err", err,
				"event_id", HeaderValue(msg.Headers, HeaderEventID))
			continue
		}

		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		wg.Add(1)
		go func(msg kafka.Message, env domain.Envelope) {
			defer wg.Done()
			defer c.sem.Release(1)
			c.handle(ctx, msg, env, handler)
		}(msg, env)
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, env domain.Envelope, handler Handler) {
	// In-flight handlers are never aborted mid-message; shutdown only
	// stops new ones from starting.
	hctx := ExtractTraceContext(context.WithoutCancel(ctx), msg)
	hctx, span := otel.Tracer("kafkax").Start(hctx, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", c.cfg.Topic),
			attribute.String("event.type", env.EventType),
		),
	)
	defer span.End()

	if err := handler(hctx, env); err != nil {
		span.RecordError(err)
		c.logger.Error("handler error", "err", err,
			"event_id", env.ID, "event_type", env.EventType)
	}
}
