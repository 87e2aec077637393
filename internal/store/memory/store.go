// Package memory is an in-process store with optimistic concurrency. Writes
// are buffered per unit of work and validated against stored versions at
// commit, together with period reads; a unit of work that reads after
// writing fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type periodKey struct {
	company     uuid.UUID
	year, month int
}

type sequenceKey struct {
	company uuid.UUID
	docType string
	year    int
}

type companyKey struct {
	company uuid.UUID
	key     string
}

// Store holds every collection of the ledger in memory.
type Store struct {
	mu sync.Mutex

	attempts     int
	retryHook    db.RetryHook
	beforeCommit func()

	accounts     map[uuid.UUID]accounting.Account
	accountCodes map[companyKey]uuid.UUID

	entries       map[uuid.UUID]accounting.JournalEntry
	entryOrder    []uuid.UUID
	entryNumbers  map[companyKey]uuid.UUID
	items         map[uuid.UUID]inventory.Item
	itemSKUs      map[companyKey]uuid.UUID
	stock         []inventory.StockLedgerEntry
	stockSeq      int64
	periods       map[periodKey]closepkg.Period
	sequences     map[sequenceKey]numbering.Sequence
	idempotency   map[companyKey]shared.IdempotencyRecord
	openDocs      map[openKey]integration.OpenDocument
	commits       int64
	conflictCount int64
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

// WithBeforeCommit runs fn, unlocked, before every commit validation.
func WithBeforeCommit(fn func()) Option {
	return func(s *Store) { s.beforeCommit = fn }
}

// New builds an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		attempts:     db.DefaultAttempts,
		accounts:     make(map[uuid.UUID]accounting.Account),
		accountCodes: make(map[companyKey]uuid.UUID),
		entries:      make(map[uuid.UUID]accounting.JournalEntry),
		entryNumbers: make(map[companyKey]uuid.UUID),
		items:        make(map[uuid.UUID]inventory.Item),
		itemSKUs:     make(map[companyKey]uuid.UUID),
		periods:      make(map[periodKey]closepkg.Period),
		sequences:    make(map[sequenceKey]numbering.Sequence),
		idempotency:  make(map[companyKey]shared.IdempotencyRecord),
		openDocs:     make(map[openKey]integration.OpenDocument),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats reports committed units of work and rejected commits.
func (s *Store) Stats() (commits, conflicts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits, s.conflictCount
}

// WithTx runs fn as one unit of work, re-executing it from scratch when the
// commit loses a version check.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, *Tx) error) error {
	return db.Retry(ctx, s.attempts, s.retryHook, func(ctx context.Context) error {
		tx := &Tx{s: s}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return tx.commit()
	})
}

// Companies lists every company owning an account or an item.
func (s *Store) Companies(_ context.Context) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	for _, a := range s.accounts {
		seen[a.CompanyID] = struct{}{}
	}
	for _, it := range s.items {
		seen[it.CompanyID] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// Tx is a buffered unit of work.
type Tx struct {
	s     *Store
	wrote bool
	ops   []op
	reads []func() error
}

// op is a buffered write: check runs under the store lock at commit and
// apply runs only when every check passed.
type op struct {
	check func() error
	apply func()
}

func (tx *Tx) read() error {
	if tx.wrote {
		return shared.ErrReadAfterWrite
	}
	return nil
}

// observe registers a read that must still hold at commit.
func (tx *Tx) observe(check func() error) {
	tx.reads = append(tx.reads, check)
}

func (tx *Tx) write(check func() error, apply func()) {
	tx.wrote = true
	tx.ops = append(tx.ops, op{check: check, apply: apply})
}

func (tx *Tx) commit() error {
	if len(tx.ops) == 0 {
		return nil
	}
	if tx.s.beforeCommit != nil {
		tx.s.beforeCommit()
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	checks := append([]func() error(nil), tx.reads...)
	for _, o := range tx.ops {
		if o.check != nil {
			checks = append(checks, o.check)
		}
	}
	for _, check := range checks {
		if err := check(); err != nil {
			if shared.IsRetryable(err) {
				tx.s.conflictCount++
			}
			return err
		}
	}
	for _, o := range tx.ops {
		o.apply()
	}
	tx.s.commits++
	return nil
}

func (s *Store) lockedRead(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
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
