package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is any fact an aggregate wants to announce to the rest of the
// platform. Implementations are immutable once emitted.
type Event interface {
	// GetEventID identifies the event for consumer-side deduplication.
	GetEventID() uuid.UUID
	// GetEventType is the dot-namespaced event name, e.g. "account.suspended".
	GetEventType() string
	GetAggregateType() string
	GetAggregateID() string
	GetOccurredAt() time.Time
	// GetPayload returns the structured event data. Anything accepted by
	// encoding/json works; persisted events return json.RawMessage.
	GetPayload() any
	// GetCorrelationID is empty when the event is not part of a traced flow.
	GetCorrelationID() string
}

// BaseEvent carries the fields every concrete event shares. Embed it and
// implement GetPayload on the embedding type.
type BaseEvent struct {
	ID          uuid.UUID
	Type        string
	Aggregate   string
	AggregateID string
	At          time.Time
	Correlation string
}

// NewBaseEvent stamps a fresh, time-ordered event id (UUIDv7) so consumers
// can deduplicate and sort without a broker round-trip.
func NewBaseEvent(eventType, aggregateType, aggregateID string) BaseEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return BaseEvent{
		ID:          id,
		Type:        eventType,
		Aggregate:   aggregateType,
		AggregateID: aggregateID,
		At:          time.Now().UTC(),
	}
}

func (b BaseEvent) GetEventID() uuid.UUID    { return b.ID }
func (b BaseEvent) GetEventType() string     { return b.Type }
func (b BaseEvent) GetAggregateType() string { return b.Aggregate }
func (b BaseEvent) GetAggregateID() string   { return b.AggregateID }
func (b BaseEvent) GetOccurredAt() time.Time { return b.At }
func (b BaseEvent) GetCorrelationID() string { return b.Correlation }
