// Package app contains the identity use cases: session lifecycle on top of
// the shared outbox and retry kernel.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/libs/retry"
	"github.com/waypoint-social/waypoint/services/identity-service/internal/session"
)

const defaultSessionTTL = 30 * 24 * time.Hour

type SessionStore interface {
	Create(ctx context.Context, tx pgx.Tx, s *session.Session) error
	FindByID(ctx context.Context, id string) (*session.Session, error)
	Update(ctx context.Context, tx pgx.Tx, s *session.Session) error
}

type EventStore interface {
	Save(ctx context.Context, tx pgx.Tx, event domain.Event) error
}

type Service struct {
	sessions SessionStore
	events   EventStore
	tx       db.TxManager
	retry    retry.Config
	logger   *slog.Logger
}

func NewService(sessions SessionStore, events EventStore, tx db.TxManager, logger *slog.Logger) *Service {
	return &Service{
		sessions: sessions,
		events:   events,
		tx:       tx,
		retry:    retry.DefaultConfig(),
		logger:   logger,
	}
}

// StartedSession is the one-time response to StartSession: the raw token
// exists only here and in the client that receives it.
type StartedSession struct {
	Session *session.Session
	Token   string
}

func (s *Service) StartSession(ctx context.Context, accountID, region string) (*StartedSession, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	sess, err := session.Start(uuid.NewString(), accountID, region, token, defaultSessionTTL)
	if err != nil {
		return nil, err
	}
	events := sess.PullEvents()

	err = s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := s.sessions.Create(ctx, tx, sess); err != nil {
			return err
		}
		return s.saveEvents(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session started", "session_id", sess.ID, "account_id", accountID)
	return &StartedSession{Session: sess, Token: token}, nil
}

// VerifySession checks that the session exists, is active and owns the
// presented token. Every failure mode maps to Unauthorized so callers
// cannot probe which part was wrong.
func (s *Service) VerifySession(ctx context.Context, sessionID, token string) (*session.Session, error) {
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.Unauthorized("invalid session")
		}
		return nil, err
	}
	if !sess.IsActive(time.Now().UTC()) || !sess.Matches(token) {
		return nil, domain.Unauthorized("invalid session")
	}
	return sess, nil
}

func (s *Service) RevokeSession(ctx context.Context, sessionID string) error {
	_, err := retry.WithRetry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		sess, err := s.sessions.FindByID(ctx, sessionID)
		if err != nil {
			return struct{}{}, err
		}
		sess.Revoke()

		events := sess.PullEvents()
		if len(events) == 0 {
			return struct{}{}, nil
		}

		return struct{}{}, s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
			if err := s.sessions.Update(ctx, tx, sess); err != nil {
				return err
			}
			return s.saveEvents(ctx, tx, events)
		})
	})
	return err
}

func (s *Service) saveEvents(ctx context.Context, tx pgx.Tx, events []domain.Event) error {
	for _, e := range events {
		if err := s.events.Save(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func newToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", domain.Internal("generate session token", err)
	}
	return hex.EncodeToString(b[:]), nil
}
