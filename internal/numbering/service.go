package numbering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes the sequence reads and writes of a unit of work.
type TxRepository interface {
	GetSequence(ctx context.Context, companyID uuid.UUID, docType string, year int) (Sequence, error)
	SaveSequence(ctx context.Context, seq Sequence) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service issues gap-free document numbers. The counter increment is written
// in the same unit of work as the document, so a rolled back or retried unit
// of work never consumes a number.
type Service struct {
	repo RepositoryPort
	now  func() time.Time
}

// NewService constructs the numbering service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// NextNumber atomically increments the (company, docType, year) counter.
// A zero year means the current calendar year.
func (s *Service) NextNumber(ctx context.Context, companyID uuid.UUID, docType string, year int) (string, error) {
	if s == nil || s.repo == nil {
		return "", errors.New("numbering: service not initialised")
	}
	if year == 0 {
		year = s.now().UTC().Year()
	}
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		res, err := Peek(ctx, tx, companyID, docType, year)
		if err != nil {
			return err
		}
		if err := Commit(ctx, tx, res); err != nil {
			return err
		}
		number = res.Number
		return nil
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

// CurrentNumber returns the last issued counter value without incrementing.
func (s *Service) CurrentNumber(ctx context.Context, companyID uuid.UUID, docType string, year int) (int64, error) {
	var current int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.GetSequence(ctx, companyID, docType, year)
		if err != nil {
			return err
		}
		current = seq.Current
		return nil
	})
	return current, err
}

// Peek is the read phase: it loads the counter and computes the next number.
func Peek(ctx context.Context, tx TxRepository, companyID uuid.UUID, docType string, year int) (Reservation, error) {
	if companyID == uuid.Nil {
		return Reservation{}, fmt.Errorf("%w: numbering: company required", shared.ErrValidation)
	}
	docType = strings.TrimSpace(docType)
	if docType == "" {
		return Reservation{}, fmt.Errorf("%w: numbering: document type required", shared.ErrValidation)
	}
	if year < 1 || year > 9999 {
		return Reservation{}, fmt.Errorf("%w: numbering: year %d out of range", shared.ErrValidation, year)
	}
	seq, err := tx.GetSequence(ctx, companyID, docType, year)
	if err != nil {
		return Reservation{}, err
	}
	seq.CompanyID = companyID
	seq.DocType = docType
	seq.Year = year
	next := seq.Current + 1
	return Reservation{Sequence: seq, Next: next, Number: Format(docType, year, next)}, nil
}

// Commit is the write phase: it persists the reservation with a version check.
func Commit(ctx context.Context, tx TxRepository, res Reservation) error {
	seq := res.Sequence
	seq.Current = res.Next
	return tx.SaveSequence(ctx, seq)
}
