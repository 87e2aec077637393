package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// DocumentKind names the documents that carry an outstanding balance.
type DocumentKind string

const (
	KindInvoice DocumentKind = "invoice"
	KindBill    DocumentKind = "bill"
)

// OpenStatus tracks settlement of an open document.
type OpenStatus string

const (
	OpenStatusOpen OpenStatus = "OPEN"
	OpenStatusPaid OpenStatus = "PAID"
)

// OpenDocument is the outstanding balance of an invoice or a bill.
type OpenDocument struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Kind      DocumentKind
	Number    string
	// PartyAccountID is the receivable or payable the document was booked to.
	PartyAccountID uuid.UUID
	JournalID      uuid.UUID
	Total          decimal.Decimal
	Paid           decimal.Decimal
	Status         OpenStatus
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining is the unpaid part of the document.
func (d OpenDocument) Remaining() decimal.Decimal {
	rem := d.Total.Sub(d.Paid)
	if rem.LessThanOrEqual(shared.BalanceTolerance) {
		return decimal.Zero
	}
	return rem
}

// Settlement applies Amount to the open document numbered Number.
type Settlement struct {
	Number string          `validate:"required,max=64"`
	Amount decimal.Decimal `validate:"gt=0"`
}

// OpenDocumentRepository persists open documents inside a unit of work.
type OpenDocumentRepository interface {
	GetOpenDocument(ctx context.Context, companyID uuid.UUID, kind DocumentKind, number string) (OpenDocument, error)
	InsertOpenDocument(ctx context.Context, doc OpenDocument) error
	// SaveOpenDocument updates paid amount and status guarded by version.
	SaveOpenDocument(ctx context.Context, doc OpenDocument) error
}

var (
	// ErrOpenDocumentNotFound is returned when a settlement names an unknown document.
	ErrOpenDocumentNotFound = fmt.Errorf("%w: integration: document not found", shared.ErrNotFound)
	// ErrOverpayment is returned when a settlement exceeds the remaining balance.
	ErrOverpayment = fmt.Errorf("%w: integration: settlement exceeds remaining balance", shared.ErrValidation)
)

// Settle applies amount and returns the updated document. Paying more than
// the remaining balance plus tolerance fails; a remainder within tolerance
// marks the document PAID.
func (d OpenDocument) Settle(amount decimal.Decimal, now time.Time) (OpenDocument, error) {
	amount = shared.Round(amount)
	if !amount.IsPositive() {
		return OpenDocument{}, fmt.Errorf("%w: integration: settlement amount must be positive", shared.ErrValidation)
	}
	if d.Status == OpenStatusPaid {
		return OpenDocument{}, fmt.Errorf("%w: %s %s is already paid", ErrOverpayment, d.Kind, d.Number)
	}
	paid := d.Paid.Add(amount)
	if paid.GreaterThan(d.Total.Add(shared.BalanceTolerance)) {
		return OpenDocument{}, fmt.Errorf("%w: %s %s remaining %s, settling %s",
			ErrOverpayment, d.Kind, d.Number, shared.FormatAmount(d.Total.Sub(d.Paid)), shared.FormatAmount(amount))
	}
	d.Paid = paid
	if d.Total.Sub(paid).LessThanOrEqual(shared.BalanceTolerance) {
		d.Status = OpenStatusPaid
	}
	d.UpdatedAt = now
	return d, nil
}

// settle loads each named document in the read phase and folds the
// settlements in order. Every document must be of kind and booked to party.
func settle(ctx context.Context, tx OpenDocumentRepository, companyID uuid.UUID, kind DocumentKind, party uuid.UUID, in []Settlement, now time.Time) ([]OpenDocument, error) {
	if len(in) == 0 {
		return nil, nil
	}
	docs := make(map[string]OpenDocument, len(in))
	var order []string
	for _, st := range in {
		if _, ok := docs[st.Number]; ok {
			continue
		}
		doc, err := tx.GetOpenDocument(ctx, companyID, kind, st.Number)
		if err != nil {
			return nil, err
		}
		if doc.PartyAccountID != party {
			return nil, fmt.Errorf("%w: integration: %s %s is not booked to the settling account", shared.ErrValidation, kind, st.Number)
		}
		docs[st.Number] = doc
		order = append(order, st.Number)
	}
	for _, st := range in {
		updated, err := docs[st.Number].Settle(st.Amount, now)
		if err != nil {
			return nil, err
		}
		docs[st.Number] = updated
	}
	out := make([]OpenDocument, 0, len(order))
	for _, number := range order {
		out = append(out, docs[number])
	}
	return out, nil
}
