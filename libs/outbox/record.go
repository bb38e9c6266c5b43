// Package outbox implements the transactional outbox: events are written
// in the same transaction as the aggregate state they describe, then
// relayed to the broker by a polling worker.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/waypoint-social/waypoint/libs/domain"
)

// MaxAttempts is the publish-attempt cap. Rows that reach it are excluded
// from polling but kept in storage for manual inspection.
const MaxAttempts = 5

// Record is one outbox row. Rows are created inside the producing
// transaction, mutated by the relay, and never deleted.
type Record struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Metadata      []byte
	OccurredAt    time.Time
	Attempts      int
	LastError     *string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
}

// Envelope rebuilds the wire form of the record.
func (r Record) Envelope() (domain.Envelope, error) {
	env := domain.Envelope{
		ID:            r.ID,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		EventType:     r.EventType,
		Payload:       r.Payload,
		OccurredAt:    r.OccurredAt,
	}
	if len(r.Metadata) > 0 {
		meta := &domain.EnvelopeMetadata{}
		if err := json.Unmarshal(r.Metadata, meta); err != nil {
			return domain.Envelope{}, domain.Internal("decode outbox metadata", err)
		}
		env.Metadata = meta
	}
	return env, nil
}
