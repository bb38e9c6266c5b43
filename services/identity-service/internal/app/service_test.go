package app

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/libs/retry"
	"github.com/waypoint-social/waypoint/services/identity-service/internal/session"
)

type memSessionStore struct {
	mu   sync.Mutex
	rows map[string]sessionRow
}

type sessionRow struct {
	snapshot session.Session
	version  int64
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{rows: map[string]sessionRow{}}
}

func (s *memSessionStore) Create(_ context.Context, _ pgx.Tx, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sess.ID] = sessionRow{snapshot: *sess, version: sess.Version()}
	return nil
}

func (s *memSessionStore) FindByID(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.NotFound("session", id)
	}
	return session.Restore(row.snapshot, row.version)
}

func (s *memSessionStore) Update(_ context.Context, _ pgx.Tx, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[sess.ID]
	if !ok || row.version != sess.LoadedVersion() {
		return domain.ConcurrencyConflict("session was modified concurrently")
	}
	s.rows[sess.ID] = sessionRow{snapshot: *sess, version: sess.Version()}
	return nil
}

type memEventStore struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *memEventStore) Save(_ context.Context, _ pgx.Tx, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memEventStore) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.GetEventType()
	}
	return out
}

type noopTx struct{}

func (noopTx) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

func newTestService(t *testing.T) (*Service, *memSessionStore, *memEventStore) {
	t.Helper()
	sessions := newMemSessionStore()
	events := &memEventStore{}
	svc := NewService(sessions, events, noopTx{}, slog.New(slog.DiscardHandler))
	svc.retry = retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}
	return svc, sessions, events
}

func TestStartSessionReturnsTokenOnce(t *testing.T) {
	svc, sessions, events := newTestService(t)

	started, err := svc.StartSession(context.Background(), "acct-1", "eu")
	require.NoError(t, err)
	assert.Len(t, started.Token, 64)
	assert.True(t, started.Session.Matches(started.Token))

	stored, err := sessions.FindByID(context.Background(), started.Session.ID)
	require.NoError(t, err)
	assert.NotContains(t, string(stored.TokenHash), started.Token)
	assert.Equal(t, []string{session.EventStarted}, events.types())
}

func TestVerifySessionAcceptsOnlyTheIssuedToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	started, err := svc.StartSession(ctx, "acct-1", "eu")
	require.NoError(t, err)

	sess, err := svc.VerifySession(ctx, started.Session.ID, started.Token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", sess.AccountID)

	_, err = svc.VerifySession(ctx, started.Session.ID, "0123456789abcdef0123456789abcdef")
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err))

	_, err = svc.VerifySession(ctx, "unknown", started.Token)
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err), "missing sessions are indistinguishable from bad tokens")
}

func TestRevokeSessionInvalidatesToken(t *testing.T) {
	svc, _, events := newTestService(t)
	ctx := context.Background()
	started, err := svc.StartSession(ctx, "acct-1", "eu")
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(ctx, started.Session.ID))

	_, err = svc.VerifySession(ctx, started.Session.ID, started.Token)
	assert.Equal(t, domain.CodeUnauthorized, domain.CodeOf(err))

	// Revoking again persists nothing new.
	require.NoError(t, svc.RevokeSession(ctx, started.Session.ID))
	assert.Equal(t, []string{session.EventStarted, session.EventRevoked}, events.types())
}

func TestRevokeUnknownSessionReturnsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.RevokeSession(context.Background(), "ghost")
	assert.Equal(t, domain.CodeNotFound, domain.CodeOf(err))
}
