package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// GetPeriod returns a stored period or closepkg.ErrPeriodNotFound. The
// observed state, absence included, is re-checked at commit.
func (tx *Tx) GetPeriod(_ context.Context, companyID uuid.UUID, year, month int) (closepkg.Period, error) {
	if err := tx.read(); err != nil {
		return closepkg.Period{}, err
	}
	key := periodKey{companyID, year, month}
	var (
		p  closepkg.Period
		ok bool
	)
	tx.s.lockedRead(func() {
		p, ok = tx.s.periods[key]
	})
	seen, version := ok, p.Version
	tx.observe(func() error {
		current, exists := tx.s.periods[key]
		if exists != seen || current.Version != version {
			return fmt.Errorf("%w: period %s changed", shared.ErrConcurrency, closepkg.PeriodKey(year, month))
		}
		return nil
	})
	if !ok {
		return closepkg.Period{}, fmt.Errorf("%w: %s", closepkg.ErrPeriodNotFound, closepkg.PeriodKey(year, month))
	}
	return p, nil
}

// SavePeriod buffers a period insert (version 0) or versioned update.
func (tx *Tx) SavePeriod(_ context.Context, p closepkg.Period) error {
	key := periodKey{p.CompanyID, p.Year, p.Month}
	tx.write(func() error {
		current, ok := tx.s.periods[key]
		if (!ok && p.Version != 0) || (ok && current.Version != p.Version) {
			return fmt.Errorf("%w: period %s", shared.ErrConcurrency, p.Key())
		}
		return nil
	}, func() {
		p.Version++
		tx.s.periods[key] = p
	})
	return nil
}

// GetSequence returns the counter; a missing counter is zero at version 0.
func (tx *Tx) GetSequence(_ context.Context, companyID uuid.UUID, docType string, year int) (numbering.Sequence, error) {
	if err := tx.read(); err != nil {
		return numbering.Sequence{}, err
	}
	var (
		seq numbering.Sequence
		ok  bool
	)
	tx.s.lockedRead(func() {
		seq, ok = tx.s.sequences[sequenceKey{companyID, docType, year}]
	})
	if !ok {
		return numbering.Sequence{CompanyID: companyID, DocType: docType, Year: year}, nil
	}
	return seq, nil
}

// SaveSequence buffers a counter write guarded by its version.
func (tx *Tx) SaveSequence(_ context.Context, seq numbering.Sequence) error {
	key := sequenceKey{seq.CompanyID, seq.DocType, seq.Year}
	tx.write(func() error {
		current, ok := tx.s.sequences[key]
		if (!ok && seq.Version != 0) || (ok && current.Version != seq.Version) {
			return fmt.Errorf("%w: sequence %s/%d", shared.ErrConcurrency, seq.DocType, seq.Year)
		}
		return nil
	}, func() {
		seq.Version++
		tx.s.sequences[key] = seq
	})
	return nil
}

// IdempotencyKeyExists reports whether key was already processed.
func (tx *Tx) IdempotencyKeyExists(_ context.Context, companyID uuid.UUID, key string) (bool, error) {
	if err := tx.read(); err != nil {
		return false, err
	}
	var ok bool
	tx.s.lockedRead(func() {
		_, ok = tx.s.idempotency[companyKey{companyID, key}]
	})
	return ok, nil
}

// InsertIdempotencyKey buffers a key reservation. Losing a race to another
// unit of work reports the operation as a duplicate.
func (tx *Tx) InsertIdempotencyKey(_ context.Context, rec shared.IdempotencyRecord) error {
	key := companyKey{rec.CompanyID, rec.Key}
	tx.write(func() error {
		if _, ok := tx.s.idempotency[key]; ok {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateOperation, rec.Key)
		}
		return nil
	}, func() {
		tx.s.idempotency[key] = rec
	})
	return nil
}

// DeleteIdempotencyKeysBefore drops reservations created before cutoff.
func (s *Store) DeleteIdempotencyKeysBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rec := range s.idempotency {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.idempotency, k)
			n++
		}
	}
	return n, nil
}
