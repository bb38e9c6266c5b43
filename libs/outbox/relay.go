package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/waypoint-social/waypoint/libs/domain"
)

// PublishFunc sends one claimed batch to the broker.
type PublishFunc func(ctx context.Context, envs []domain.Envelope) error

// Store is the claim cycle the relay drives: fetch up to limit rows,
// publish them, mark the outcome. Returns how many rows were published.
type Store interface {
	ProcessBatch(ctx context.Context, limit int, publish PublishFunc) (int, error)
}

// Producer is the subset of the broker client the relay needs.
type Producer interface {
	PublishBatch(ctx context.Context, envs []domain.Envelope) error
}

type RelayConfig struct {
	BatchSize       int
	PollingInterval time.Duration
}

// Relay polls the outbox store and pushes committed events to the broker.
// Delivery is at least once: a crash between publish and mark re-publishes
// the batch on restart, and consumers deduplicate by event id.
type Relay struct {
	store     Store
	producer  Producer
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
}

func NewRelay(store Store, producer Producer, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 500 * time.Millisecond
	}
	return &Relay{
		store:     store,
		producer:  producer,
		logger:    logger,
		batchSize: cfg.BatchSize,
		interval:  cfg.PollingInterval,
	}
}

// Run loops until ctx is cancelled. The shutdown check sits at the top of
// each iteration and races the sleep, so the current batch always
// completes before the worker exits.
func (w *Relay) Run(ctx context.Context) {
	w.logger.Info("outbox relay started", "batch_size", w.batchSize, "interval", w.interval)

	for {
		if ctx.Err() != nil {
			break
		}

		n, err := w.store.ProcessBatch(ctx, w.batchSize, w.producer.PublishBatch)
		if err != nil {
			w.logger.Error("outbox relay batch failed", "err", err)
		} else if n > 0 {
			w.logger.Debug("relayed events", "count", n)
		}

		// A full batch means there is likely backlog: loop again without
		// sleeping. Anything less waits out the poll interval.
		if err == nil && n >= w.batchSize {
			continue
		}

		select {
		case <-time.After(w.interval):
		case <-ctx.Done():
		}
	}

	w.logger.Info("outbox relay stopped")
}
