package close

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodReader is the read side used by the posting guard.
type PeriodReader interface {
	GetPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (Period, error)
}

// TxRepository exposes period reads and writes inside a unit of work.
type TxRepository interface {
	PeriodReader
	SavePeriod(ctx context.Context, period Period) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Service manages the fiscal period lock.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// IsPeriodOpen reports whether date falls in an open period for the company.
func (s *Service) IsPeriodOpen(ctx context.Context, companyID uuid.UUID, date time.Time) (bool, error) {
	if companyID == uuid.Nil {
		return false, fmt.Errorf("%w: close: company required", shared.ErrValidation)
	}
	open := true
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		open, err = periodOpen(ctx, tx, companyID, date)
		return err
	})
	if err != nil {
		return false, err
	}
	return open, nil
}

// GetPeriod returns the stored period.
func (s *Service) GetPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.GetPeriod(ctx, companyID, year, month)
		return err
	})
	return period, err
}

// ClosePeriod marks the period CLOSED. Closing a closed period fails.
func (s *Service) ClosePeriod(ctx context.Context, in PeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	actor := shared.ActorFromContext(ctx, in.ActorID)
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriod(ctx, in.CompanyID, in.Year, in.Month)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			current = Period{CompanyID: in.CompanyID, Year: in.Year, Month: in.Month}
		case err != nil:
			return err
		}
		if current.IsClosed() {
			return ErrAlreadyClosed
		}
		now := s.now().UTC()
		current.Status = PeriodStatusClosed
		current.ClosedBy = actor
		current.ClosedAt = &now
		if err := tx.SavePeriod(ctx, current); err != nil {
			return err
		}
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, period, actor, "period.close")
	return period, nil
}

// ReopenPeriod marks an existing period OPEN again. It is a privileged action
// and is always audited.
func (s *Service) ReopenPeriod(ctx context.Context, in PeriodInput) (Period, error) {
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	actor := shared.ActorFromContext(ctx, in.ActorID)
	var (
		period Period
		before PeriodStatus
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriod(ctx, in.CompanyID, in.Year, in.Month)
		if errors.Is(err, shared.ErrNotFound) {
			return ErrReopenMissing
		}
		if err != nil {
			return err
		}
		before = current.Status
		now := s.now().UTC()
		current.Status = PeriodStatusOpen
		current.ReopenedBy = actor
		current.ReopenedAt = &now
		if err := tx.SavePeriod(ctx, current); err != nil {
			return err
		}
		period = current
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, period, actor, "period.reopen", "before", string(before))
	return period, nil
}

func (s *Service) record(ctx context.Context, period Period, actor uuid.UUID, action string, kv ...string) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"year":   period.Year,
		"month":  period.Month,
		"status": string(period.Status),
	}
	for i := 0; i+1 < len(kv); i += 2 {
		meta[kv[i]] = kv[i+1]
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: period.CompanyID,
		ActorID:   actor,
		Action:    action,
		Entity:    "fiscal_period",
		EntityID:  period.Key(),
		Meta:      meta,
		At:        s.now(),
	})
}

func periodOpen(ctx context.Context, tx PeriodReader, companyID uuid.UUID, date time.Time) (bool, error) {
	year, month, _ := date.Date()
	period, err := tx.GetPeriod(ctx, companyID, year, int(month))
	if errors.Is(err, shared.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !period.IsClosed(), nil
}
