// Package storage is the Postgres persistence layer for sessions.
package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/services/identity-service/internal/session"
)

type SessionRepository struct {
	pool *db.Pool
}

func NewSessionRepository(pool *db.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, tx pgx.Tx, s *session.Session) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, account_id, region, token_hash, expires_at,
		                      revoked, revoked_at, created_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.AccountID, s.Region, s.TokenHash, s.ExpiresAt,
		s.Revoked, s.RevokedAt, s.CreatedAt, s.Version())
	if err != nil {
		return domain.Infrastructure("insert session", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*session.Session, error) {
	var (
		s       session.Session
		version int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, region, token_hash, expires_at,
		       revoked, revoked_at, created_at, version
		FROM sessions
		WHERE id = $1
	`, id).Scan(&s.ID, &s.AccountID, &s.Region, &s.TokenHash, &s.ExpiresAt,
		&s.Revoked, &s.RevokedAt, &s.CreatedAt, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("session", id)
	}
	if err != nil {
		return nil, domain.Infrastructure("select session", err)
	}
	return session.Restore(s, version)
}

func (r *SessionRepository) Update(ctx context.Context, tx pgx.Tx, s *session.Session) error {
	tag, err := tx.Exec(ctx, `
		UPDATE sessions
		SET revoked = $3, revoked_at = $4, version = $5
		WHERE id = $1 AND version = $2
	`, s.ID, s.LoadedVersion(), s.Revoked, s.RevokedAt, s.Version())
	if err != nil {
		return domain.Infrastructure("update session", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ConcurrencyConflict("session was modified concurrently")
	}
	return nil
}
