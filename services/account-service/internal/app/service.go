// Package app contains the account use cases: load the aggregate, apply
// the mutation, then commit state and outbox rows in one transaction. The
// whole cycle is wrapped in conflict retry.
package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/waypoint-social/waypoint/libs/db"
	"github.com/waypoint-social/waypoint/libs/domain"
	"github.com/waypoint-social/waypoint/libs/retry"
	"github.com/waypoint-social/waypoint/services/account-service/internal/account"
)

// AccountStore is the persistence surface the use cases depend on.
type AccountStore interface {
	Create(ctx context.Context, tx pgx.Tx, a *account.Account) error
	FindByID(ctx context.Context, id string) (*account.Account, error)
	Update(ctx context.Context, tx pgx.Tx, a *account.Account) error
}

// EventStore appends events on the caller's transaction.
type EventStore interface {
	Save(ctx context.Context, tx pgx.Tx, event domain.Event) error
}

type Service struct {
	accounts AccountStore
	events   EventStore
	tx       db.TxManager
	retry    retry.Config
	logger   *slog.Logger
}

func NewService(accounts AccountStore, events EventStore, tx db.TxManager, logger *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		events:   events,
		tx:       tx,
		retry:    retry.DefaultConfig(),
		logger:   logger,
	}
}

type RegisterAccountCommand struct {
	Region   string
	Username string
	Email    string
}

// RegisterAccount creates a new account and commits it together with its
// creation event.
func (s *Service) RegisterAccount(ctx context.Context, cmd RegisterAccountCommand) (*account.Account, error) {
	a, err := account.New(uuid.NewString(), cmd.Region, cmd.Username, cmd.Email)
	if err != nil {
		return nil, err
	}
	events := a.PullEvents()

	err = s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if err := s.accounts.Create(ctx, tx, a); err != nil {
			return err
		}
		return s.saveEvents(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", a.ID, "region", a.Region)
	return a, nil
}

func (s *Service) ChangeEmail(ctx context.Context, accountID, email string) error {
	_, err := s.mutate(ctx, accountID, func(a *account.Account) error {
		return a.ChangeEmail(email)
	})
	return err
}

func (s *Service) ChangeUsername(ctx context.Context, accountID, username string) error {
	_, err := s.mutate(ctx, accountID, func(a *account.Account) error {
		return a.ChangeUsername(username)
	})
	return err
}

// UpdateLocale reports whether a change was actually persisted: setting
// the locale the account already has is a no-op and returns false.
func (s *Service) UpdateLocale(ctx context.Context, accountID, locale string) (bool, error) {
	return s.mutate(ctx, accountID, func(a *account.Account) error {
		return a.UpdateLocale(locale)
	})
}

func (s *Service) SuspendAccount(ctx context.Context, accountID, reason string) error {
	_, err := s.mutate(ctx, accountID, func(a *account.Account) error {
		return a.Suspend(reason)
	})
	return err
}

func (s *Service) ReinstateAccount(ctx context.Context, accountID string) error {
	_, err := s.mutate(ctx, accountID, func(a *account.Account) error {
		return a.Reinstate()
	})
	return err
}

func (s *Service) DeactivateAccount(ctx context.Context, accountID string) error {
	_, err := s.mutate(ctx, accountID, func(a *account.Account) error {
		return a.Deactivate()
	})
	return err
}

// mutate runs one load-mutate-commit cycle, retried on version conflicts.
// The reload inside the retry closure is what picks up the competing
// writer's state. Returns whether anything was persisted.
func (s *Service) mutate(ctx context.Context, accountID string, fn func(*account.Account) error) (bool, error) {
	return retry.WithRetry(ctx, s.retry, func(ctx context.Context) (bool, error) {
		a, err := s.accounts.FindByID(ctx, accountID)
		if err != nil {
			return false, err
		}
		if err := fn(a); err != nil {
			return false, err
		}

		events := a.PullEvents()
		if len(events) == 0 {
			return false, nil
		}

		err = s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
			if err := s.accounts.Update(ctx, tx, a); err != nil {
				return err
			}
			return s.saveEvents(ctx, tx, events)
		})
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *Service) saveEvents(ctx context.Context, tx pgx.Tx, events []domain.Event) error {
	for _, e := range events {
		if err := s.events.Save(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}
