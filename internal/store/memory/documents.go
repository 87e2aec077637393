package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type openKey struct {
	company uuid.UUID
	kind    integration.DocumentKind
	number  string
}

// GetOpenDocument returns an invoice or bill balance record.
func (tx *Tx) GetOpenDocument(_ context.Context, companyID uuid.UUID, kind integration.DocumentKind, number string) (integration.OpenDocument, error) {
	if err := tx.read(); err != nil {
		return integration.OpenDocument{}, err
	}
	var (
		doc integration.OpenDocument
		ok  bool
	)
	tx.s.lockedRead(func() {
		doc, ok = tx.s.openDocs[openKey{companyID, kind, number}]
	})
	if !ok {
		return integration.OpenDocument{}, fmt.Errorf("%w: %s %s", integration.ErrOpenDocumentNotFound, kind, number)
	}
	return doc, nil
}

// InsertOpenDocument buffers a new balance record.
func (tx *Tx) InsertOpenDocument(_ context.Context, doc integration.OpenDocument) error {
	doc.Version = 1
	key := openKey{doc.CompanyID, doc.Kind, doc.Number}
	tx.write(func() error {
		if _, ok := tx.s.openDocs[key]; ok {
			return fmt.Errorf("%w: %s %s", shared.ErrDuplicateOperation, doc.Kind, doc.Number)
		}
		return nil
	}, func() {
		tx.s.openDocs[key] = doc
	})
	return nil
}

// SaveOpenDocument buffers a settlement update guarded by version.
func (tx *Tx) SaveOpenDocument(_ context.Context, doc integration.OpenDocument) error {
	key := openKey{doc.CompanyID, doc.Kind, doc.Number}
	tx.write(func() error {
		current, ok := tx.s.openDocs[key]
		if !ok {
			return fmt.Errorf("%w: %s %s", integration.ErrOpenDocumentNotFound, doc.Kind, doc.Number)
		}
		if current.Version != doc.Version {
			return fmt.Errorf("%w: %s %s", shared.ErrConcurrency, doc.Kind, doc.Number)
		}
		return nil
	}, func() {
		doc.Version++
		tx.s.openDocs[key] = doc
	})
	return nil
}
