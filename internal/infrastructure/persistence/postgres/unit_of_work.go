// Package postgres - UnitOfWork implementation backed by pgx transactions.
//
// Usage:
//
//	err := uow.Execute(ctx, func(txCtx context.Context) error {
//	    wallet, _ := walletStore.FindByID(txCtx, walletID)
//	    wallet.Debit(amount)
//	    return walletStore.Save(txCtx, wallet)
//	})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentwallet/core/internal/application/ports"
)

var _ ports.UnitOfWork = (*UnitOfWork)(nil)
var _ ports.UnitOfWorkFactory = (*UnitOfWorkFactory)(nil)

// UnitOfWork implements ports.UnitOfWork with pgx transactions. Default
// isolation is read-committed.
type UnitOfWork struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewUnitOfWork constructs a UnitOfWork at the default isolation level.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// NewUnitOfWorkWithIsolation constructs a UnitOfWork at the given isolation level.
func NewUnitOfWorkWithIsolation(pool *pgxpool.Pool, isolation pgx.TxIsoLevel) *UnitOfWork {
	return &UnitOfWork{pool: pool, opts: pgx.TxOptions{IsoLevel: isolation}}
}

// Execute runs fn inside a transaction, committing on nil and rolling
// back on error or panic. A context already carrying a transaction is
// passed through unchanged — pgx has no true nested transactions.
func (u *UnitOfWork) Execute(ctx context.Context, fn func(context.Context) error) error {
	if hasTx(ctx) {
		return fn(ctx)
	}

	tx, err := u.pool.BeginTx(ctx, u.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	txCtx := injectTx(ctx, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// ExecuteWithResult is like Execute but also returns a value from fn.
func (u *UnitOfWork) ExecuteWithResult(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	var result interface{}

	err := u.Execute(ctx, func(txCtx context.Context) error {
		var fnErr error
		result, fnErr = fn(txCtx)
		return fnErr
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExecuteWithRetry retries fn up to maxRetries times when it fails with a
// retryable error (serialization failure, deadlock).
func (u *UnitOfWork) ExecuteWithRetry(ctx context.Context, maxRetries int, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := u.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// UnitOfWorkFactory implements ports.UnitOfWorkFactory.
type UnitOfWorkFactory struct {
	pool *pgxpool.Pool
}

// NewUnitOfWorkFactory constructs a UnitOfWorkFactory.
func NewUnitOfWorkFactory(pool *pgxpool.Pool) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{pool: pool}
}

// New creates a UnitOfWork at the default (read-committed) isolation level.
func (f *UnitOfWorkFactory) New() ports.UnitOfWork {
	return NewUnitOfWork(f.pool)
}

// NewWithIsolation creates a UnitOfWork at the given isolation level.
func (f *UnitOfWorkFactory) NewWithIsolation(isolation pgx.TxIsoLevel) ports.UnitOfWork {
	return NewUnitOfWorkWithIsolation(f.pool, isolation)
}

// NewSerializable creates a UnitOfWork at Serializable isolation, used by
// operations that must not observe or produce write skew (the admission
// debit, the kill-switch latch, and spawn lineage writes).
func (f *UnitOfWorkFactory) NewSerializable() ports.UnitOfWork {
	return NewUnitOfWorkWithIsolation(f.pool, pgx.Serializable)
}
