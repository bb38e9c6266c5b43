package cache

import (
	"context"
	"log/slog"

	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/libs/kafkax"
)

// Worker invalidates cached reads when aggregates change. It is a pure
// reaction to relayed events: invalidation is idempotent, so duplicate
// delivery is harmless.
type Worker struct {
	consumer kafkax.Consumer
	cache    Cache
	logger   *slog.Logger
}

func NewWorker(consumer kafkax.Consumer, cache Cache, logger *slog.Logger) *Worker {
	return &Worker{consumer: consumer, cache: cache, logger: logger}
}

// Run consumes envelopes until ctx is cancelled, dropping every cache key
// under the aggregate's prefix.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("cache invalidation worker started")
	defer w.logger.Info("cache invalidation worker stopped")

	return w.consumer.Consume(ctx, func(ctx context.Context, env domain.Envelope) error {
		pattern := env.AggregateType + ":" + env.AggregateID + "*"
		if err := w.cache.InvalidatePattern(ctx, pattern); err != nil {
			return err
		}
		w.logger.Debug("cache invalidated", "pattern", pattern, "event_type", env.EventType)
		return nil
	})
}
