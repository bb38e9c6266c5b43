package domain

// AggregateMetadata is the technical state mixed into every aggregate:
// the optimistic-concurrency version counter and the buffer of events
// produced by the current mutation. Embed it by value in the entity.
type AggregateMetadata struct {
	version int64
	// loaded is the version as read from storage; repositories condition
	// their UPDATE on it. Zero means the aggregate was never persisted.
	loaded int64
	events []Event
}

// NewAggregateMetadata is for freshly created aggregates: version 1,
// nothing loaded from storage yet.
func NewAggregateMetadata() AggregateMetadata {
	return AggregateMetadata{version: 1}
}

// RestoreAggregateMetadata is for aggregates rehydrated by a repository.
// The event buffer starts empty: restoration never re-emits past events.
func RestoreAggregateMetadata(version int64) (AggregateMetadata, error) {
	if version < 1 {
		return AggregateMetadata{}, Internal("storage returned an invalid aggregate version", nil)
	}
	return AggregateMetadata{version: version, loaded: version}, nil
}

// Version is the current in-memory version, including any increments
// applied by mutations since load.
func (m *AggregateMetadata) Version() int64 { return m.version }

// LoadedVersion is the optimistic lock token: the version the aggregate
// had when it was read.
func (m *AggregateMetadata) LoadedVersion() int64 { return m.loaded }

func (m *AggregateMetadata) AddEvent(e Event) {
	m.events = append(m.events, e)
}

// PullEvents drains the buffer. A second call returns nil until a new
// mutation records further events.
func (m *AggregateMetadata) PullEvents() []Event {
	events := m.events
	m.events = nil
	return events
}

func (m *AggregateMetadata) IncrementVersion() {
	m.version++
}

// Aggregate is the capability every domain entity implements. The version
// and event-buffer behavior comes for free from the embedded
// AggregateMetadata; entities only provide identity and access.
type Aggregate interface {
	AggregateID() string
	AggregateType() string
	Version() int64
	LoadedVersion() int64
	PullEvents() []Event
}
