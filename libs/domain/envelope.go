package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeMetadata is the optional technical metadata carried next to the
// business payload: correlation id plus W3C trace context, so a relayed
// event keeps its distributed trace across the broker hop.
type EnvelopeMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	Traceparent   string `json:"traceparent,omitempty"`
	Tracestate    string `json:"tracestate,omitempty"`
}

func (m *EnvelopeMetadata) empty() bool {
	return m == nil || (m.CorrelationID == "" && m.Traceparent == "" && m.Tracestate == "")
}

// Envelope is the canonical persisted/wire form of an Event. It is built
// once when the event enters the outbox and is itself a valid Event, so it
// can be re-wrapped without loss on the consumer side.
type Envelope struct {
	ID            uuid.UUID         `json:"id"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	EventType     string            `json:"event_type"`
	Payload       json.RawMessage   `json:"payload"`
	OccurredAt    time.Time         `json:"occurred_at"`
	Metadata      *EnvelopeMetadata `json:"metadata,omitempty"`
}

// Wrap serializes the event payload and captures its identity fields.
func Wrap(e Event) (Envelope, error) {
	payload, err := json.Marshal(e.GetPayload())
	if err != nil {
		return Envelope{}, Internal(fmt.Sprintf("marshal payload for event %s", e.GetEventType()), err)
	}

	env := Envelope{
		ID:            e.GetEventID(),
		AggregateType: e.GetAggregateType(),
		AggregateID:   e.GetAggregateID(),
		EventType:     e.GetEventType(),
		Payload:       payload,
		OccurredAt:    e.GetOccurredAt(),
	}
	if cid := e.GetCorrelationID(); cid != "" {
		env.Metadata = &EnvelopeMetadata{CorrelationID: cid}
	}
	return env, nil
}

// MetadataJSON renders the metadata for storage, nil when there is none.
func (e Envelope) MetadataJSON() ([]byte, error) {
	if e.Metadata.empty() {
		return nil, nil
	}
	return json.Marshal(e.Metadata)
}

func (e Envelope) GetEventID() uuid.UUID    { return e.ID }
func (e Envelope) GetEventType() string     { return e.EventType }
func (e Envelope) GetAggregateType() string { return e.AggregateType }
func (e Envelope) GetAggregateID() string   { return e.AggregateID }
func (e Envelope) GetOccurredAt() time.Time { return e.OccurredAt }
func (e Envelope) GetPayload() any          { return e.Payload }

func (e Envelope) GetCorrelationID() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.CorrelationID
}
