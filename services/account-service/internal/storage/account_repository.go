// Package storage is the Postgres persistence layer for accounts. Writes
// are conditioned on the version read at load time, which is what turns
// lost updates into ConcurrencyConflict errors.
package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/services/account-service/internal/account"
)

const accountColumns = `
	id, region, username, email, email_verified, state, birth_date, locale,
	created_at, updated_at, version`

type AccountRepository struct {
	pool *db.Pool
}

func NewAccountRepository(pool *db.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Create(ctx context.Context, tx pgx.Tx, a *account.Account) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, region, username, email, email_verified, state,
		                      birth_date, locale, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.Region, a.Username, a.Email, a.EmailVerified, a.State,
		a.BirthDate, a.Locale, a.CreatedAt, a.UpdatedAt, a.Version())
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return domain.Infrastructure("insert account", err)
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*account.Account, error) {
	var (
		a       account.Account
		version int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT`+accountColumns+`
		FROM accounts
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Region, &a.Username, &a.Email, &a.EmailVerified, &a.State,
		&a.BirthDate, &a.Locale, &a.CreatedAt, &a.UpdatedAt, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("account", id)
	}
	if err != nil {
		return nil, domain.Infrastructure("select account", err)
	}
	return account.Restore(a, version)
}

// Update persists the aggregate only if nobody else committed since it was
// loaded. Zero rows affected means the version check failed.
func (r *AccountRepository) Update(ctx context.Context, tx pgx.Tx, a *account.Account) error {
	tag, err := tx.Exec(ctx, `
		UPDATE accounts
		SET region = $3, username = $4, email = $5, email_verified = $6,
		    state = $7, birth_date = $8, locale = $9, updated_at = $10,
		    version = $11
		WHERE id = $1 AND version = $2
	`, a.ID, a.LoadedVersion(), a.Region, a.Username, a.Email, a.EmailVerified,
		a.State, a.BirthDate, a.Locale, a.UpdatedAt, a.Version())
	if err != nil {
		if conflict := uniqueViolation(err); conflict != nil {
			return conflict
		}
		return domain.Infrastructure("update account", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ConcurrencyConflict("account was modified concurrently")
	}
	return nil
}

// uniqueViolation maps Postgres 23505 errors onto the field behind the
// violated constraint.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case "accounts_username_key":
		return domain.AlreadyExists("account", "username", "")
	case "accounts_email_key":
		return domain.AlreadyExists("account", "email", "")
	default:
		return domain.AlreadyExists("account", "unique_constraint", pgErr.ConstraintName)
	}
}
