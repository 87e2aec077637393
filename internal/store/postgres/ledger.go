package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const accountColumns = `id, company_id, code, name, type, parent_id, is_group, is_active,
	total_debit, total_credit, balance, version, created_at, updated_at`

func scanAccount(row pgx.Row) (accounting.Account, error) {
	var (
		acc accounting.Account
		typ string
	)
	err := row.Scan(&acc.ID, &acc.CompanyID, &acc.Code, &acc.Name, &typ, &acc.ParentID, &acc.IsGroup, &acc.IsActive,
		&acc.TotalDebit, &acc.TotalCredit, &acc.Balance, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	acc.Type = accounting.AccountType(typ)
	return acc, err
}

// GetAccounts returns the company's accounts among ids.
func (t *Tx) GetAccounts(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounting.Account, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id = $1 AND id = ANY($2::uuid[])`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]accounting.Account, len(ids))
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[acc.ID] = acc
	}
	return out, rows.Err()
}

// GetAccount returns one account of the company.
func (t *Tx) GetAccount(ctx context.Context, companyID, id uuid.UUID) (accounting.Account, error) {
	acc, err := scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		return accounting.Account{}, notFound(err, accounting.ErrAccountNotFound, id)
	}
	return acc, nil
}

// AccountCodeExists reports whether code is taken in the company.
func (t *Tx) AccountCodeExists(ctx context.Context, companyID uuid.UUID, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE company_id = $1 AND code = $2)`, companyID, code).Scan(&exists)
	return exists, err
}

// ListAccounts returns the company's accounts ordered by code.
func (t *Tx) ListAccounts(ctx context.Context, companyID uuid.UUID) ([]accounting.Account, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id = $1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []accounting.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// InsertAccount stores a new account at version 1.
func (t *Tx) InsertAccount(ctx context.Context, acc accounting.Account) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO accounts (id, company_id, code, name, type, parent_id, is_group, is_active,
	total_debit, total_credit, balance, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)`,
		acc.ID, acc.CompanyID, acc.Code, acc.Name, string(acc.Type), acc.ParentID, acc.IsGroup, acc.IsActive,
		acc.TotalDebit, acc.TotalCredit, acc.Balance, acc.CreatedAt, acc.UpdatedAt)
	if db.IsUniqueViolation(err, "accounts_company_code_key") {
		return fmt.Errorf("%w: %s", accounting.ErrDuplicateCode, acc.Code)
	}
	return err
}

// SaveAccount writes totals and flags when the stored version still matches.
func (t *Tx) SaveAccount(ctx context.Context, acc accounting.Account) error {
	tag, err := t.tx.Exec(ctx, `UPDATE accounts
SET name = $3, is_active = $4, total_debit = $5, total_credit = $6, balance = $7, updated_at = $8, version = version + 1
WHERE id = $1 AND company_id = $2 AND version = $9`,
		acc.ID, acc.CompanyID, acc.Name, acc.IsActive, acc.TotalDebit, acc.TotalCredit, acc.Balance, acc.UpdatedAt, acc.Version)
	return cas(tag, err, "account "+acc.Code)
}

const entryColumns = `id, company_id, number, date, description, status, source_type, source_id, reversal_of,
	reversed_by, void_reason, created_by, posted_by, posted_at, voided_by, voided_at, version, created_at`

func scanEntry(row pgx.Row) (accounting.JournalEntry, error) {
	var (
		e                            accounting.JournalEntry
		status, source               string
		createdBy, postedBy, voidedBy *uuid.UUID
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.Number, &e.Date, &e.Description, &status, &source, &e.SourceID, &e.ReversalOf,
		&e.ReversedBy, &e.VoidReason, &createdBy, &postedBy, &e.PostedAt, &voidedBy, &e.VoidedAt, &e.Version, &e.CreatedAt)
	e.Status = accounting.JournalStatus(status)
	e.SourceType = accounting.SourceType(source)
	e.CreatedBy, e.PostedBy, e.VoidedBy = fromNull(createdBy), fromNull(postedBy), fromNull(voidedBy)
	return e, err
}

func (t *Tx) entryLines(ctx context.Context, companyID uuid.UUID, entryID *uuid.UUID) (map[uuid.UUID][]accounting.JournalLine, error) {
	query := `SELECT l.entry_id, l.line_no, l.account_id, l.debit, l.credit, l.memo
FROM journal_lines l JOIN journal_entries e ON e.id = l.entry_id
WHERE e.company_id = $1 AND ($2::uuid IS NULL OR e.id = $2)
ORDER BY l.entry_id, l.line_no`
	rows, err := t.tx.Query(ctx, query, companyID, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]accounting.JournalLine)
	for rows.Next() {
		var (
			id   uuid.UUID
			line accounting.JournalLine
		)
		if err := rows.Scan(&id, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return nil, err
		}
		out[id] = append(out[id], line)
	}
	return out, rows.Err()
}

// GetJournalEntry returns an entry with its lines.
func (t *Tx) GetJournalEntry(ctx context.Context, companyID, id uuid.UUID) (accounting.JournalEntry, error) {
	entry, err := scanEntry(t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		return accounting.JournalEntry{}, notFound(err, accounting.ErrJournalNotFound, id)
	}
	lines, err := t.entryLines(ctx, companyID, &id)
	if err != nil {
		return accounting.JournalEntry{}, err
	}
	entry.Lines = lines[id]
	return entry, nil
}

// JournalNumberExists reports whether number is taken in the company.
func (t *Tx) JournalNumberExists(ctx context.Context, companyID uuid.UUID, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_entries WHERE company_id = $1 AND number = $2)`, companyID, number).Scan(&exists)
	return exists, err
}

// ListJournalEntries returns the company's entries in creation order.
func (t *Tx) ListJournalEntries(ctx context.Context, companyID uuid.UUID) ([]accounting.JournalEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id = $1 ORDER BY created_at, number`, companyID)
	if err != nil {
		return nil, err
	}
	var entries []accounting.JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := t.entryLines(ctx, companyID, nil)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

// InsertJournalEntry stores an entry and its lines.
func (t *Tx) InsertJournalEntry(ctx context.Context, e accounting.JournalEntry) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO journal_entries (`+entryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17)`,
		e.ID, e.CompanyID, e.Number, e.Date, e.Description, string(e.Status), string(e.SourceType), e.SourceID, e.ReversalOf,
		e.ReversedBy, e.VoidReason, nullUUID(e.CreatedBy), nullUUID(e.PostedBy), e.PostedAt, nullUUID(e.VoidedBy), e.VoidedAt, e.CreatedAt)
	if db.IsUniqueViolation(err, "journal_entries_company_number_key") {
		return fmt.Errorf("%w: %s", accounting.ErrDuplicateNumber, e.Number)
	}
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, l := range e.Lines {
		batch.Queue(`INSERT INTO journal_lines (entry_id, line_no, account_id, debit, credit, memo) VALUES ($1, $2, $3, $4, $5, $6)`,
			e.ID, l.LineNo, l.AccountID, l.Debit, l.Credit, l.Memo)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

// SaveJournalEntry updates header fields when the stored version still matches.
func (t *Tx) SaveJournalEntry(ctx context.Context, e accounting.JournalEntry) error {
	tag, err := t.tx.Exec(ctx, `UPDATE journal_entries
SET status = $3, reversed_by = $4, void_reason = $5, posted_by = $6, posted_at = $7, voided_by = $8, voided_at = $9,
	version = version + 1
WHERE id = $1 AND company_id = $2 AND version = $10`,
		e.ID, e.CompanyID, string(e.Status), e.ReversedBy, e.VoidReason, nullUUID(e.PostedBy), e.PostedAt,
		nullUUID(e.VoidedBy), e.VoidedAt, e.Version)
	return cas(tag, err, "journal "+e.Number)
}
