// Package postgres persists the ledger in PostgreSQL. Every unit of work runs
// in a SERIALIZABLE transaction; versioned rows are updated with a
// compare-and-swap and a lost race is reported as shared.ErrConcurrency.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

//go:embed schema.sql
var schema string

// Store is the PostgreSQL-backed repository shared by every service.
type Store struct {
	pool      *pgxpool.Pool
	attempts  int
	retryHook db.RetryHook
}

// Option configures the store.
type Option func(*Store)

// WithAttempts bounds unit-of-work retries on conflict.
func WithAttempts(n int) Option {
	return func(s *Store) { s.attempts = n }
}

// WithRetryHook observes retried units of work.
func WithRetryHook(hook db.RetryHook) Option {
	return func(s *Store) { s.retryHook = hook }
}

// New wraps an open pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, attempts: db.DefaultAttempts}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store/postgres: migrate: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn in one transaction and re-runs it on serialization failures
// and lost version checks.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	return db.Retry(ctx, s.attempts, s.retryHook, func(ctx context.Context) error {
		return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			return fn(ctx, &Tx{tx: tx})
		})
	})
}

// Companies lists every company owning an account or an item.
func (s *Store) Companies(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT company_id FROM accounts UNION SELECT company_id FROM items ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// DeleteIdempotencyKeysBefore drops reservations created before cutoff.
func (s *Store) DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Tx is one transaction.
type Tx struct {
	tx pgx.Tx
}

// cas reports a lost compare-and-swap when an update touched no row.
func cas(tag pgconn.CommandTag, err error, what string) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", shared.ErrConcurrency, what)
	}
	return nil
}

func notFound(err error, sentinel error, ref any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", sentinel, ref)
	}
	return err
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func fromNull(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// Accounting returns the ledger repository port.
func (s *Store) Accounting() accounting.RepositoryPort { return accountingPort{s} }

// Inventory returns the stock repository port.
func (s *Store) Inventory() inventory.RepositoryPort { return inventoryPort{s} }

// Periods returns the fiscal period repository port.
func (s *Store) Periods() closepkg.RepositoryPort { return periodPort{s} }

// Numbering returns the sequence repository port.
func (s *Store) Numbering() numbering.RepositoryPort { return numberingPort{s} }

// Integration returns the port for documents spanning stock and ledger.
func (s *Store) Integration() integration.RepositoryPort { return integrationPort{s} }

// Idempotency returns the standalone idempotency repository.
func (s *Store) Idempotency() shared.IdempotencyRepository { return idempotencyPort{s} }

type accountingPort struct{ s *Store }

func (p accountingPort) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type inventoryPort struct{ s *Store }

func (p inventoryPort) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type periodPort struct{ s *Store }

func (p periodPort) WithTx(ctx context.Context, fn func(context.Context, closepkg.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type numberingPort struct{ s *Store }

func (p numberingPort) WithTx(ctx context.Context, fn func(context.Context, numbering.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type integrationPort struct{ s *Store }

func (p integrationPort) WithTx(ctx context.Context, fn func(context.Context, integration.TxRepository) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type idempotencyPort struct{ s *Store }

func (p idempotencyPort) WithTx(ctx context.Context, fn func(context.Context, shared.IdempotencyTx) error) error {
	return p.s.WithTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

func (p idempotencyPort) DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return p.s.DeleteIdempotencyKeysBefore(ctx, cutoff)
}
