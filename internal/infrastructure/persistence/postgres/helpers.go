// Package postgres - shared helpers for the PostgreSQL adapters.
package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier abstracts over a pool and a transaction so a repository can run
// the same query either way.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txKey is the context key under which UnitOfWork stashes the active
// transaction for repositories to pick up.
type txKey struct{}

// injectTx attaches tx to ctx.
func injectTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// extractTx returns the transaction stored in ctx, or nil if there isn't one.
func extractTx(ctx context.Context) pgx.Tx {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return nil
	}
	return tx
}

// hasTx reports whether ctx carries an active transaction.
func hasTx(ctx context.Context) bool {
	return extractTx(ctx) != nil
}

// PostgreSQL error codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"

	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// isPgError reports whether err is a *pgconn.PgError with the given code.
func isPgError(err error, code string) bool {
	if err == nil {
		return false
	}
	pgErr, ok := err.(*pgconn.PgError)
	if !ok {
		return false
	}
	return pgErr.Code == code
}

// isUniqueViolation reports a UNIQUE constraint violation. constraintName
// is optional; when given, the constraint name must contain it.
func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	pgErr, ok := err.(*pgconn.PgError)
	if !ok {
		return false
	}
	if pgErr.Code != pgUniqueViolation {
		return false
	}
	if constraintName != "" {
		return strings.Contains(pgErr.ConstraintName, constraintName)
	}
	return true
}

// isForeignKeyViolation reports a FOREIGN KEY constraint violation.
func isForeignKeyViolation(err error) bool {
	return isPgError(err, pgForeignKeyViolation)
}

// isSerializationFailure reports a serialization failure or deadlock,
// both retryable under SERIALIZABLE isolation.
func isSerializationFailure(err error) bool {
	return isPgError(err, pgSerializationFailure) || isPgError(err, pgDeadlockDetected)
}

// isNotNullViolation reports a NOT NULL constraint violation.
func isNotNullViolation(err error) bool {
	return isPgError(err, pgNotNullViolation)
}

// isCheckViolation reports a CHECK constraint violation.
func isCheckViolation(err error) bool {
	return isPgError(err, pgCheckViolation)
}

// isRetryableError reports whether the operation that produced err is
// safe to retry: serialization failures, deadlocks, and connection errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if isSerializationFailure(err) {
		return true
	}
	pgErr, ok := err.(*pgconn.PgError)
	if ok {
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return false
}
