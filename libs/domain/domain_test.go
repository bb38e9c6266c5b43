package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvent struct {
	BaseEvent
	Field string
}

func (e stubEvent) GetPayload() any {
	return map[string]any{"field": e.Field}
}

func TestAggregateMetadataPullEventsDrainsOnce(t *testing.T) {
	meta := NewAggregateMetadata()
	meta.AddEvent(stubEvent{BaseEvent: NewBaseEvent("account.updated", "account", "a-1")})
	meta.AddEvent(stubEvent{BaseEvent: NewBaseEvent("account.updated", "account", "a-1")})

	first := meta.PullEvents()
	require.Len(t, first, 2)

	second := meta.PullEvents()
	assert.Empty(t, second, "second pull must return nothing")

	meta.AddEvent(stubEvent{BaseEvent: NewBaseEvent("account.updated", "account", "a-1")})
	assert.Len(t, meta.PullEvents(), 1)
}

func TestAggregateMetadataVersioning(t *testing.T) {
	meta := NewAggregateMetadata()
	assert.Equal(t, int64(1), meta.Version())
	assert.Equal(t, int64(0), meta.LoadedVersion())

	meta.IncrementVersion()
	meta.IncrementVersion()
	assert.Equal(t, int64(3), meta.Version())
	assert.Equal(t, int64(0), meta.LoadedVersion(), "lock token never moves in memory")
}

func TestRestoreAggregateMetadata(t *testing.T) {
	meta, err := RestoreAggregateMetadata(7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), meta.Version())
	assert.Equal(t, int64(7), meta.LoadedVersion())
	assert.Empty(t, meta.PullEvents(), "restored aggregates must not re-emit past events")

	_, err = RestoreAggregateMetadata(0)
	require.Error(t, err)
	_, err = RestoreAggregateMetadata(-3)
	require.Error(t, err)
}

func TestNewBaseEventIsTimeOrdered(t *testing.T) {
	a := NewBaseEvent("account.updated", "account", "a-1")
	b := NewBaseEvent("account.updated", "account", "a-1")

	require.NotEqual(t, uuid.Nil, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, uuid.Version(7), a.ID.Version())
	assert.False(t, a.At.IsZero())
	assert.Equal(t, time.UTC, a.At.Location())
}

func TestWrapRoundTrip(t *testing.T) {
	evt := stubEvent{
		BaseEvent: NewBaseEvent("account.email_changed", "account", "acc-42"),
		Field:     "new@example.com",
	}
	evt.Correlation = "corr-1"

	env, err := Wrap(evt)
	require.NoError(t, err)

	assert.Equal(t, evt.ID, env.ID)
	assert.Equal(t, "account.email_changed", env.EventType)
	assert.Equal(t, "account", env.AggregateType)
	assert.Equal(t, "acc-42", env.AggregateID)
	require.NotNil(t, env.Metadata)
	assert.Equal(t, "corr-1", env.Metadata.CorrelationID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "new@example.com", payload["field"])

	// The envelope is itself an event and survives re-wrapping.
	rewrapped, err := Wrap(env)
	require.NoError(t, err)
	assert.Equal(t, env.ID, rewrapped.ID)
	assert.Equal(t, env.EventType, rewrapped.EventType)
	assert.Equal(t, "corr-1", rewrapped.GetCorrelationID())
	assert.JSONEq(t, string(env.Payload), string(rewrapped.Payload))
}

func TestEnvelopeMetadataJSON(t *testing.T) {
	env := Envelope{ID: uuid.New()}
	raw, err := env.MetadataJSON()
	require.NoError(t, err)
	assert.Nil(t, raw, "no metadata means NULL in storage")

	env.Metadata = &EnvelopeMetadata{Traceparent: "00-abc-def-01"}
	raw, err = env.MetadataJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "traceparent")
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{"validation", Validation("email", "missing @"), CodeValidation},
		{"not found", NotFound("account", "a-1"), CodeNotFound},
		{"already exists", AlreadyExists("account", "email", "x@y.z"), CodeAlreadyExists},
		{"conflict", ConcurrencyConflict("version mismatch"), CodeConcurrencyConflict},
		{"too many conflicts", TooManyConflicts("gave up"), CodeTooManyConflicts},
		{"forbidden", Forbidden("region mismatch"), CodeForbidden},
		{"infrastructure", Infrastructure("kafka down", errors.New("dial tcp")), CodeInfrastructure},
		{"wrapped conflict", fmt.Errorf("use case: %w", ConcurrencyConflict("v")), CodeConcurrencyConflict},
		{"plain error", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestIsConcurrencyConflict(t *testing.T) {
	assert.True(t, IsConcurrencyConflict(ConcurrencyConflict("x")))
	assert.True(t, IsConcurrencyConflict(fmt.Errorf("wrapped: %w", ConcurrencyConflict("x"))))
	assert.False(t, IsConcurrencyConflict(TooManyConflicts("terminal")))
	assert.False(t, IsConcurrencyConflict(nil))
}
