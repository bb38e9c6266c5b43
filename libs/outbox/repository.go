package outbox

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/domain"
	otelx "github.com/waypoint-social/waypoint/libs/otel"
)

// Repository is the pgx-backed outbox store. Save runs on the caller's
// transaction; the claim cycle runs on its own.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save appends one row for the event using the same transaction handle
// the caller used to persist aggregate state. Commit makes state and
// event durable together; abort discards both.
func (r *Repository) Save(ctx context.Context, tx pgx.Tx, event domain.Event) error {
	env, err := domain.Wrap(event)
	if err != nil {
		return err
	}

	if traceparent, tracestate := otelx.TraceContextStrings(ctx); traceparent != "" || tracestate != "" {
		if env.Metadata == nil {
			env.Metadata = &domain.EnvelopeMetadata{}
		}
		env.Metadata.Traceparent = traceparent
		env.Metadata.Tracestate = tracestate
	}

	meta, err := env.MetadataJSON()
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, env.ID, env.AggregateType, env.AggregateID, env.EventType, env.Payload, meta, env.OccurredAt)
	if err != nil {
		return domain.Infrastructure("insert outbox row", err)
	}
	return nil
}

// ProcessBatch claims up to limit unprocessed rows, hands them to publish,
// and marks the outcome, all in one transaction. FOR UPDATE SKIP LOCKED
// keeps the claim exclusive while the transaction is open, so concurrent
// relay workers never publish the same row in the same cycle.
func (r *Repository) ProcessBatch(ctx context.Context, limit int, publish PublishFunc) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, domain.Infrastructure("begin outbox claim", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := r.fetchUnprocessed(ctx, tx, limit)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	envs := make([]domain.Envelope, 0, len(records))
	ids := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		env, err := rec.Envelope()
		if err != nil {
			return 0, err
		}
		envs = append(envs, env)
		ids = append(ids, rec.ID)
	}

	if pubErr := publish(ctx, envs); pubErr != nil {
		// The rows stay unprocessed; record the failure so the next poll
		// retries them and operators can see why they are stuck.
		if err := r.markFailed(ctx, tx, ids, pubErr.Error()); err != nil {
			return 0, err
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, domain.Infrastructure("commit outbox failure marks", err)
		}
		return 0, pubErr
	}

	if err := r.markProcessed(ctx, tx, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, domain.Infrastructure("commit outbox claim", err)
	}
	return len(envs), nil
}

func (r *Repository) fetchUnprocessed(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, metadata,
		       occurred_at, attempts, last_error, processed_at, created_at
		FROM outbox
		WHERE processed_at IS NULL
		  AND attempts < $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, MaxAttempts, limit)
	if err != nil {
		return nil, domain.Infrastructure("fetch unprocessed outbox rows", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.Payload, &rec.Metadata, &rec.OccurredAt, &rec.Attempts,
			&rec.LastError, &rec.ProcessedAt, &rec.CreatedAt); err != nil {
			return nil, domain.Infrastructure("scan outbox row", err)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, domain.Infrastructure("iterate outbox rows", rows.Err())
	}
	return records, nil
}

func (r *Repository) markProcessed(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET processed_at = now() WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return domain.Infrastructure("mark outbox rows processed", err)
	}
	return nil
}

func (r *Repository) markFailed(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, lastError string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = ANY($1)
	`, ids, lastError)
	if err != nil {
		return domain.Infrastructure("mark outbox rows failed", err)
	}
	return nil
}
