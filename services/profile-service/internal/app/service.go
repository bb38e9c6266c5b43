// Package app contains the profile use cases. Writes go through the same
// load-mutate-commit cycle as accounts; reads add a Redis fast path with
// singleflight protection against cold-key stampedes.
package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/waypoint-social/waypoint/libs/cache"
	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/libs/retry"
	"github.com/waypoint-social/waypoint/services/profile-service/internal/profile"
)

const (
	// profileTTL bounds staleness between an invalidation gap and the next
	// write; handleTTL can be long because handles never change.
	profileTTL = time.Hour
	handleTTL  = 24 * time.Hour
)

type ProfileStore interface {
	Create(ctx context.Context, tx pgx.Tx, p *profile.Profile) error
	FindByID(ctx context.Context, accountID string) (*profile.Profile, error)
	FindIDByHandle(ctx context.Context, region, handle string) (string, error)
	Update(ctx context.Context, tx pgx.Tx, p *profile.Profile) error
}

type EventStore interface {
	Save(ctx context.Context, tx pgx.Tx, event domain.Event) error
}

type Service struct {
	profiles ProfileStore
	events   EventStore
	tx       db.TxManager
	cache    cache.Cache
	flight   cache.Flight[*profile.Profile]
	retry    retry.Config
	logger   *slog.Logger
}

func NewService(profiles ProfileStore, events EventStore, tx db.TxManager, c cache.Cache, logger *slog.Logger) *Service {
	return &Service{
		profiles: profiles,
		events:   events,
		tx:       tx,
		cache:    c,
		retry:    retry.DefaultConfig(),
		logger:   logger,
	}
}

type CreateProfileCommand struct {
	AccountID   string
	Region      string
	Handle      string
	DisplayName string
}

func (s *Service) CreateProfile(ctx context.Context, cmd CreateProfileCommand) (*profile.Profile, error) {
	p, err := profile.New(cmd.AccountID, cmd.Region, cmd.Handle, cmd.DisplayName)
	if err != nil {
		return nil, err
	}
	events := p.PullEvents()

	err = s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := s.profiles.Create(ctx, tx, p); err != nil {
			return err
		}
		return s.saveEvents(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile created", "account_id", p.AccountID, "handle", p.Handle)
	return p, nil
}

func (s *Service) UpdateDisplayName(ctx context.Context, accountID, displayName string) error {
	return s.mutate(ctx, accountID, func(p *profile.Profile) error {
		return p.UpdateDisplayName(displayName)
	})
}

func (s *Service) UpdateBio(ctx context.Context, accountID, bio string) error {
	return s.mutate(ctx, accountID, func(p *profile.Profile) error {
		return p.UpdateBio(bio)
	})
}

func (s *Service) UpdateLocation(ctx context.Context, accountID string, loc profile.Location) error {
	return s.mutate(ctx, accountID, func(p *profile.Profile) error {
		return p.UpdateLocation(loc)
	})
}

func (s *Service) IncrementPostCount(ctx context.Context, accountID string) error {
	return s.mutate(ctx, accountID, func(p *profile.Profile) error {
		p.IncrementPostCount()
		return nil
	})
}

func (s *Service) DecrementPostCount(ctx context.Context, accountID string) error {
	return s.mutate(ctx, accountID, func(p *profile.Profile) error {
		p.DecrementPostCount()
		return nil
	})
}

// GetProfileByHandle is the hot read path: handle to account id, then the
// id-keyed profile. Both steps are cached; only the id-keyed entry is
// touched by event-driven invalidation, so the profile body is never
// served stale past one invalidation cycle.
func (s *Service) GetProfileByHandle(ctx context.Context, region, handle string) (*profile.Profile, error) {
	accountID, err := s.resolveHandle(ctx, region, handle)
	if err != nil {
		return nil, err
	}
	return s.GetProfileByID(ctx, accountID)
}

func (s *Service) GetProfileByID(ctx context.Context, accountID string) (*profile.Profile, error) {
	key := profile.AggregateType + ":" + accountID

	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var p profile.Profile
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			return &p, nil
		}
		// A corrupt entry falls through and gets overwritten below.
	}

	return s.flight.Do(key, func() (*profile.Profile, error) {
		p, err := s.profiles.FindByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(p); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), profileTTL); err != nil {
				s.logger.Warn("profile cache fill failed", "key", key, "err", err)
			}
		}
		return p, nil
	})
}

func (s *Service) resolveHandle(ctx context.Context, region, handle string) (string, error) {
	key := profile.AggregateType + ":handle:" + region + ":" + handle

	if id, ok, err := s.cache.Get(ctx, key); err == nil && ok && id != "" {
		return id, nil
	}

	id, err := s.profiles.FindIDByHandle(ctx, region, handle)
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, key, id, handleTTL); err != nil {
		s.logger.Warn("handle cache fill failed", "key", key, "err", err)
	}
	return id, nil
}

func (s *Service) mutate(ctx context.Context, accountID string, fn func(*profile.Profile) error) error {
	_, err := retry.WithRetry(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
		p, err := s.profiles.FindByID(ctx, accountID)
		if err != nil {
			return struct{}{}, err
		}
		if err := fn(p); err != nil {
			return struct{}{}, err
		}

		events := p.PullEvents()
		if len(events) == 0 {
			return struct{}{}, nil
		}

		return struct{}{}, s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
			if err := s.profiles.Update(ctx, tx, p); err != nil {
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
