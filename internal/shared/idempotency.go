package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord marks an operation key as processed for a company.
type IdempotencyRecord struct {
	CompanyID uuid.UUID
	Key       string
	Module    string
	CreatedAt time.Time
}

// IdempotencyTx is the slice of a unit of work used by the guard.
type IdempotencyTx interface {
	IdempotencyKeyExists(ctx context.Context, companyID uuid.UUID, key string) (bool, error)
	InsertIdempotencyKey(ctx context.Context, rec IdempotencyRecord) error
}

// IdempotencyRepository runs guard checks in their own unit of work.
type IdempotencyRepository interface {
	WithTx(ctx context.Context, fn func(context.Context, IdempotencyTx) error) error
	DeleteIdempotencyKeysBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// IdempotencyGuard rejects retried operations before any state is touched.
type IdempotencyGuard struct {
	repo IdempotencyRepository
	now  func() time.Time
}

// NewIdempotencyGuard constructs the guard.
func NewIdempotencyGuard(repo IdempotencyRepository) *IdempotencyGuard {
	return &IdempotencyGuard{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (g *IdempotencyGuard) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

// IdempotencyKey derives the operation key for a logical document.
func IdempotencyKey(docType, number string) string {
	return fmt.Sprintf("%s_%s", strings.ToLower(docType), number)
}

// CheckAndReserve atomically reserves key. It returns false when the key was
// already processed; the caller must then skip all side effects.
func (g *IdempotencyGuard) CheckAndReserve(ctx context.Context, companyID uuid.UUID, key, module string) (bool, error) {
	if g == nil || g.repo == nil {
		return false, errors.New("idempotency guard not initialised")
	}
	fresh := false
	err := g.repo.WithTx(ctx, func(ctx context.Context, tx IdempotencyTx) error {
		fresh = false
		if err := g.Check(ctx, tx, companyID, key); err != nil {
			return err
		}
		if err := g.Reserve(ctx, tx, companyID, key, module); err != nil {
			return err
		}
		fresh = true
		return nil
	})
	if errors.Is(err, ErrDuplicateOperation) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// Check is the read-phase half of CheckAndReserve. A blank key disables the check.
func (g *IdempotencyGuard) Check(ctx context.Context, tx IdempotencyTx, companyID uuid.UUID, key string) error {
	if key == "" {
		return nil
	}
	if companyID == uuid.Nil {
		return fmt.Errorf("%w: idempotency company required", ErrValidation)
	}
	exists, err := tx.IdempotencyKeyExists(ctx, companyID, key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOperation, key)
	}
	return nil
}

// Reserve is the write-phase half of CheckAndReserve.
func (g *IdempotencyGuard) Reserve(ctx context.Context, tx IdempotencyTx, companyID uuid.UUID, key, module string) error {
	if key == "" {
		return nil
	}
	if module == "" {
		module = "ledger"
	}
	return tx.InsertIdempotencyKey(ctx, IdempotencyRecord{
		CompanyID: companyID,
		Key:       key,
		Module:    module,
		CreatedAt: g.clock(),
	})
}

// Cleanup removes entries older than retention.
func (g *IdempotencyGuard) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if g == nil || g.repo == nil {
		return 0, nil
	}
	return g.repo.DeleteIdempotencyKeysBefore(ctx, g.clock().Add(-olderThan))
}

func (g *IdempotencyGuard) clock() time.Time {
	if g != nil && g.now != nil {
		return g.now().UTC()
	}
	return time.Now().UTC()
}
