// Package storage is the Postgres persistence layer for profiles.
package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/services/profile-service/internal/profile"
)

type ProfileRepository struct {
	pool *db.Pool
}

func NewProfileRepository(pool *db.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func (r *ProfileRepository) Create(ctx context.Context, tx pgx.Tx, p *profile.Profile) error {
	var lat, lon *float64
	var label *string
	if p.Location != nil {
		lat, lon, label = &p.Location.Lat, &p.Location.Lon, &p.Location.Label
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO profiles (account_id, region, handle, display_name, bio,
		                      location_lat, location_lon, location_label,
		                      post_count, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, p.AccountID, p.Region, p.Handle, p.DisplayName, p.Bio,
		lat, lon, label, p.PostCount, p.CreatedAt, p.UpdatedAt, p.Version())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "profiles_handle_key" {
				return domain.AlreadyExists("profile", "handle", p.Handle)
			}
			return domain.AlreadyExists("profile", "account_id", p.AccountID)
		}
		return domain.Infrastructure("insert profile", err)
	}
	return nil
}

func (r *ProfileRepository) FindByID(ctx context.Context, accountID string) (*profile.Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT account_id, region, handle, display_name, bio,
		       location_lat, location_lon, location_label,
		       post_count, created_at, updated_at, version
		FROM profiles
		WHERE account_id = $1
	`, accountID)
	return scanProfile(row, accountID)
}

// FindIDByHandle resolves a handle within a region to the owning account
// id. Handles are immutable, so callers may cache the result aggressively.
func (r *ProfileRepository) FindIDByHandle(ctx context.Context, region, handle string) (string, error) {
	var accountID string
	err := r.pool.QueryRow(ctx, `
		SELECT account_id FROM profiles WHERE region = $1 AND handle = $2
	`, region, handle).Scan(&accountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.NotFound("profile", handle)
	}
	if err != nil {
		return "", domain.Infrastructure("resolve profile handle", err)
	}
	return accountID, nil
}

func (r *ProfileRepository) Update(ctx context.Context, tx pgx.Tx, p *profile.Profile) error {
	var lat, lon *float64
	var label *string
	if p.Location != nil {
		lat, lon, label = &p.Location.Lat, &p.Location.Lon, &p.Location.Label
	}
	tag, err := tx.Exec(ctx, `
		UPDATE profiles
		SET display_name = $3, bio = $4, location_lat = $5, location_lon = $6,
		    location_label = $7, post_count = $8, updated_at = $9, version = $10
		WHERE account_id = $1 AND version = $2
	`, p.AccountID, p.LoadedVersion(), p.DisplayName, p.Bio,
		lat, lon, label, p.PostCount, p.UpdatedAt, p.Version())
	if err != nil {
		return domain.Infrastructure("update profile", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ConcurrencyConflict("profile was modified concurrently")
	}
	return nil
}

func scanProfile(row pgx.Row, accountID string) (*profile.Profile, error) {
	var (
		p        profile.Profile
		lat, lon *float64
		label    *string
		version  int64
	)
	err := row.Scan(&p.AccountID, &p.Region, &p.Handle, &p.DisplayName, &p.Bio,
		&lat, &lon, &label, &p.PostCount, &p.CreatedAt, &p.UpdatedAt, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound("profile", accountID)
	}
	if err != nil {
		return nil, domain.Infrastructure("select profile", err)
	}
	if lat != nil && lon != nil {
		loc := profile.Location{Lat: *lat, Lon: *lon}
		if label != nil {
			loc.Label = *label
		}
		p.Location = &loc
	}
	return profile.Restore(p, version)
}
