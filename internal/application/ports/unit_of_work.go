// Package ports defines the interfaces the application layer depends on
// and the infrastructure layer implements (Dependency Inversion).
//
// Pattern: Unit of Work
// - Guarantees a set of operations commit or roll back atomically
// - One UnitOfWork = one database transaction
// - Automatic rollback on error or panic
package ports

import "context"

// UnitOfWork is the contract for running a function inside a single
// database transaction. The admission path (spec.md §5) relies on this
// for its serialized read-evaluate-write sequence.
//
// Example:
//
//	err := uow.Execute(ctx, func(txCtx context.Context) error {
//	    wallet, _ := walletStore.FindByID(txCtx, walletID)
//	    wallet.Debit(amount)
//	    return walletStore.Save(txCtx, wallet)
//	})
type UnitOfWork interface {
	// Execute runs fn inside a transaction. If fn returns an error the
	// transaction is rolled back; otherwise it is committed. The context
	// passed to fn carries the transaction — every store call inside fn
	// MUST use that context, not the outer one.
	Execute(ctx context.Context, fn func(context.Context) error) error

	// ExecuteWithResult is like Execute but also returns a value, useful
	// when the caller needs the entity that was created or mutated.
	ExecuteWithResult(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error)

	// ExecuteWithRetry retries fn up to maxAttempts times when it fails
	// with a ConcurrencyError (optimistic-lock or serialization
	// conflict), reloading and re-evaluating from scratch on each retry.
	ExecuteWithRetry(ctx context.Context, maxAttempts int, fn func(context.Context) error) error
}

// UnitOfWorkFactory creates UnitOfWork instances, optionally pinned to a
// specific isolation level. The admission path uses the Serializable
// level for the per-wallet debit sequence; most reads use the default.
type UnitOfWorkFactory interface {
	// New creates a UnitOfWork at the default (read-committed) isolation
	// level.
	New() UnitOfWork

	// NewSerializable creates a UnitOfWork at Serializable isolation,
	// used by operations that must not observe or produce write skew
	// (e.g. the admission debit and the kill-switch latch).
	NewSerializable() UnitOfWork
}
