package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DefaultAttempts bounds how often a conflicting unit of work is re-executed.
const DefaultAttempts = 3

// SQLSTATE codes surfaced as conflicts or duplicates.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// RetryHook observes each failed attempt of a unit of work.
type RetryHook func(attempt int, err error)

// txOptions is the isolation of every unit of work. A period read that a
// concurrent close invalidates fails with 40001.
var txOptions = pgx.TxOptions{IsoLevel: pgx.Serializable}

// WithTx executes a function within a serializable transaction.
// Serialization failures and deadlocks are reported as shared.ErrConcurrency.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or
// attempts are exhausted. Every attempt starts from scratch.
func Retry(ctx context.Context, attempts int, hook RetryHook, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = DefaultAttempts
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !shared.IsRetryable(err) {
			return err
		}
		if hook != nil {
			hook(attempt, err)
		}
	}
	return fmt.Errorf("platform/db: gave up after %d attempts: %w", attempts, err)
}

// Classify maps PostgreSQL conflict codes onto the shared error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", shared.ErrConcurrency, pgErr.Message)
	}
	return err
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to a constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
