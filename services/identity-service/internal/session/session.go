// Package session holds the Session aggregate: a server-side credential
// whose token is stored only as a bcrypt hash.
package session

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/waypoint-social/waypoint/libs/domain"
)

const AggregateType = "session"

const (
	EventStarted = "identity.session.started"
	EventRevoked = "identity.session.revoked"
)

// bcrypt silently truncates input past 72 bytes.
const maxTokenBytes = 72

const minTokenBytes = 32

type event struct {
	domain.BaseEvent
	payload any
}

func (e event) GetPayload() any { return e.payload }

type StartedPayload struct {
	SessionID string    `json:"session_id"`
	AccountID string    `json:"account_id"`
	Region    string    `json:"region"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RevokedPayload struct {
	SessionID string `json:"session_id"`
	AccountID string `json:"account_id"`
	Region    string `json:"region"`
}

type Session struct {
	domain.AggregateMetadata

	ID        string
	AccountID string
	Region    string
	TokenHash []byte
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Start opens a session for an account. The raw token is hashed here and
// never stored; callers hand the raw value to the client exactly once.
func Start(id, accountID, region, token string, ttl time.Duration) (*Session, error) {
	if id == "" {
		return nil, domain.Validation("id", "must not be empty")
	}
	if accountID == "" {
		return nil, domain.Validation("account_id", "must not be empty")
	}
	if len(token) < minTokenBytes || len(token) > maxTokenBytes {
		return nil, domain.Validation("token", "must be between 32 and 72 bytes")
	}
	if ttl <= 0 {
		return nil, domain.Validation("ttl", "must be positive")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Internal("hash session token", err)
	}

	now := time.Now().UTC()
	s := &Session{
		AggregateMetadata: domain.NewAggregateMetadata(),
		ID:                id,
		AccountID:         accountID,
		Region:            region,
		TokenHash:         hash,
		ExpiresAt:         now.Add(ttl),
		CreatedAt:         now,
	}
	s.AddEvent(event{
		BaseEvent: domain.NewBaseEvent(EventStarted, AggregateType, s.ID),
		payload: StartedPayload{
			SessionID: s.ID,
			AccountID: s.AccountID,
			Region:    s.Region,
			ExpiresAt: s.ExpiresAt,
		},
	})
	return s, nil
}

func Restore(s Session, version int64) (*Session, error) {
	meta, err := domain.RestoreAggregateMetadata(version)
	if err != nil {
		return nil, err
	}
	s.AggregateMetadata = meta
	return &s, nil
}

func (s *Session) AggregateID() string   { return s.ID }
func (s *Session) AggregateType() string { return AggregateType }

// Matches reports whether the presented token is the one this session was
// started with.
func (s *Session) Matches(token string) bool {
	return bcrypt.CompareHashAndPassword(s.TokenHash, []byte(token)) == nil
}

func (s *Session) IsActive(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// Revoke is idempotent: revoking an already revoked session emits nothing.
func (s *Session) Revoke() {
	if s.Revoked {
		return
	}

	now := time.Now().UTC()
	s.Revoked = true
	s.RevokedAt = &now
	s.IncrementVersion()
	s.AddEvent(event{
		BaseEvent: domain.NewBaseEvent(EventRevoked, AggregateType, s.ID),
		payload: RevokedPayload{
			SessionID: s.ID,
			AccountID: s.AccountID,
			Region:    s.Region,
		},
	})
}
