package kafkax

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/waypoint-social/waypoint/libs/domain"
	otelx "github.com/waypoint-social/waypoint/libs/otel"
)

// Producer publishes event envelopes to the broker. Messages are keyed by
// aggregate id, which pins every event of one aggregate to one partition
// and preserves its commit order on the wire.
type Producer interface {
	Publish(ctx context.Context, env domain.Envelope) error
	PublishBatch(ctx context.Context, envs []domain.Envelope) error
}

type ProducerConfig struct {
	Brokers string
	// Topic is the deployment's default topic; routing inside it happens
	// via the event_type header.
	Topic string
}

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewProducer(cfg ProducerConfig) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}
	return &KafkaProducer{writer: w}
}

func (p *KafkaProducer) Publish(ctx context.Context, env domain.Envelope) error {
	msg, err := p.message(ctx, env)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return domain.Infrastructure("kafka publish", err)
	}
	return nil
}

func (p *KafkaProducer) PublishBatch(ctx context.Context, envs []domain.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(envs))
	for _, env := range envs {
		msg, err := p.message(ctx, env)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return domain.Infrastructure("kafka batch publish", err)
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

func (p *KafkaProducer) message(ctx context.Context, env domain.Envelope) (kafka.Message, error) {
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, domain.Internal("marshal envelope", err)
	}

	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(env.ID.String())},
		{Key: HeaderEventType, Value: []byte(env.EventType)},
	}

	// Restore the trace the event was committed under, so the broker hop
	// joins the original request's trace rather than the relay loop's.
	msgCtx := ctx
	if env.Metadata != nil {
		msgCtx = otelx.ContextWithTraceContext(ctx, env.Metadata.Traceparent, env.Metadata.Tracestate)
	}
	headers = InjectTraceHeaders(msgCtx, headers)

	return kafka.Message{
		Key:     []byte(env.AggregateID),
		Value:   value,
		Headers: headers,
	}, nil
}
