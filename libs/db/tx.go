package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/waypoint-social/waypoint/libs/domain"
)

// TxManager runs a unit of work against a single transaction. The handle
// never escapes fn: begin, commit and rollback belong to the manager.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

type txManager struct {
	pool *Pool
}

func NewTxManager(pool *Pool) TxManager {
	return &txManager{pool: pool}
}

func (m *txManager) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return domain.Infrastructure("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Infrastructure("commit transaction", err)
	}
	return nil
}
