package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// GetPeriod returns a stored period or closepkg.ErrPeriodNotFound.
func (t *Tx) GetPeriod(ctx context.Context, companyID uuid.UUID, year, month int) (closepkg.Period, error) {
	var (
		p                    closepkg.Period
		status               string
		closedBy, reopenedBy *uuid.UUID
	)
	err := t.tx.QueryRow(ctx, `SELECT company_id, year, month, status, closed_by, closed_at, reopened_by, reopened_at, version
FROM fiscal_periods WHERE company_id = $1 AND year = $2 AND month = $3`, companyID, year, month).
		Scan(&p.CompanyID, &p.Year, &p.Month, &status, &closedBy, &p.ClosedAt, &reopenedBy, &p.ReopenedAt, &p.Version)
	if err != nil {
		return closepkg.Period{}, notFound(err, closepkg.ErrPeriodNotFound, closepkg.PeriodKey(year, month))
	}
	p.Status = closepkg.PeriodStatus(status)
	p.ClosedBy, p.ReopenedBy = fromNull(closedBy), fromNull(reopenedBy)
	return p, nil
}

// SavePeriod inserts a new period (version 0) or updates it with a version check.
func (t *Tx) SavePeriod(ctx context.Context, p closepkg.Period) error {
	if p.Version == 0 {
		_, err := t.tx.Exec(ctx, `INSERT INTO fiscal_periods (company_id, year, month, status, closed_by, closed_at, reopened_by, reopened_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)`,
			p.CompanyID, p.Year, p.Month, string(p.Status), nullUUID(p.ClosedBy), p.ClosedAt, nullUUID(p.ReopenedBy), p.ReopenedAt)
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: period %s", shared.ErrConcurrency, p.Key())
		}
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE fiscal_periods
SET status = $4, closed_by = $5, closed_at = $6, reopened_by = $7, reopened_at = $8, version = version + 1
WHERE company_id = $1 AND year = $2 AND month = $3 AND version = $9`,
		p.CompanyID, p.Year, p.Month, string(p.Status), nullUUID(p.ClosedBy), p.ClosedAt, nullUUID(p.ReopenedBy), p.ReopenedAt, p.Version)
	return cas(tag, err, "period "+p.Key())
}

// GetSequence returns the counter; a missing counter is zero at version 0.
func (t *Tx) GetSequence(ctx context.Context, companyID uuid.UUID, docType string, year int) (numbering.Sequence, error) {
	seq := numbering.Sequence{CompanyID: companyID, DocType: docType, Year: year}
	err := t.tx.QueryRow(ctx, `SELECT current, version FROM document_sequences WHERE company_id = $1 AND doc_type = $2 AND year = $3`,
		companyID, docType, year).Scan(&seq.Current, &seq.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return seq, nil
	}
	return seq, err
}

// SaveSequence persists the counter guarded by its version.
func (t *Tx) SaveSequence(ctx context.Context, seq numbering.Sequence) error {
	what := fmt.Sprintf("sequence %s/%d", seq.DocType, seq.Year)
	if seq.Version == 0 {
		_, err := t.tx.Exec(ctx, `INSERT INTO document_sequences (company_id, doc_type, year, current, version) VALUES ($1, $2, $3, $4, 1)`,
			seq.CompanyID, seq.DocType, seq.Year, seq.Current)
		if db.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: %s", shared.ErrConcurrency, what)
		}
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE document_sequences SET current = $4, version = version + 1
WHERE company_id = $1 AND doc_type = $2 AND year = $3 AND version = $5`,
		seq.CompanyID, seq.DocType, seq.Year, seq.Current, seq.Version)
	return cas(tag, err, what)
}

// IdempotencyKeyExists reports whether key was already processed.
func (t *Tx) IdempotencyKeyExists(ctx context.Context, companyID uuid.UUID, key string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM idempotency_keys WHERE company_id = $1 AND key = $2)`, companyID, key).Scan(&exists)
	return exists, err
}

// InsertIdempotencyKey reserves a key. Losing a race reports a duplicate.
func (t *Tx) InsertIdempotencyKey(ctx context.Context, rec shared.IdempotencyRecord) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO idempotency_keys (company_id, key, module, created_at) VALUES ($1, $2, $3, $4)`,
		rec.CompanyID, rec.Key, rec.Module, rec.CreatedAt)
	if db.IsUniqueViolation(err, "idempotency_keys_pkey") {
		return fmt.Errorf("%w: %s", shared.ErrDuplicateOperation, rec.Key)
	}
	return err
}
