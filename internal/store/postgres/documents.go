package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// GetOpenDocument returns an invoice or bill balance record.
func (t *Tx) GetOpenDocument(ctx context.Context, companyID uuid.UUID, kind integration.DocumentKind, number string) (integration.OpenDocument, error) {
	var (
		doc       integration.OpenDocument
		kindStr   string
		status    string
		journalID *uuid.UUID
	)
	err := t.tx.QueryRow(ctx, `SELECT id, company_id, kind, number, party_account_id, journal_id, total, paid, status, version, created_at, updated_at
FROM open_documents WHERE company_id = $1 AND kind = $2 AND number = $3`, companyID, string(kind), number).
		Scan(&doc.ID, &doc.CompanyID, &kindStr, &doc.Number, &doc.PartyAccountID, &journalID, &doc.Total, &doc.Paid, &status, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return integration.OpenDocument{}, notFound(err, integration.ErrOpenDocumentNotFound, fmt.Sprintf("%s %s", kind, number))
	}
	doc.Kind = integration.DocumentKind(kindStr)
	doc.Status = integration.OpenStatus(status)
	doc.JournalID = fromNull(journalID)
	return doc, nil
}

// InsertOpenDocument stores a new balance record at version 1.
func (t *Tx) InsertOpenDocument(ctx context.Context, doc integration.OpenDocument) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO open_documents (id, company_id, kind, number, party_account_id, journal_id, total, paid, status, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)`,
		doc.ID, doc.CompanyID, string(doc.Kind), doc.Number, doc.PartyAccountID, nullUUID(doc.JournalID),
		doc.Total, doc.Paid, string(doc.Status), doc.CreatedAt, doc.UpdatedAt)
	if db.IsUniqueViolation(err, "open_documents_company_kind_number_key") {
		return fmt.Errorf("%w: %s %s", shared.ErrDuplicateOperation, doc.Kind, doc.Number)
	}
	return err
}

// SaveOpenDocument updates paid amount and status with a version check.
func (t *Tx) SaveOpenDocument(ctx context.Context, doc integration.OpenDocument) error {
	tag, err := t.tx.Exec(ctx, `UPDATE open_documents SET paid = $2, status = $3, updated_at = $4, version = version + 1
WHERE id = $1 AND version = $5`, doc.ID, doc.Paid, string(doc.Status), doc.UpdatedAt, doc.Version)
	return cas(tag, err, fmt.Sprintf("%s %s", doc.Kind, doc.Number))
}
