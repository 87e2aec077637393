package numbering

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Document types with registered prefixes.
const (
	DocJournalEntry = "journal_entry"
	DocGRN          = "grn"
	DocDeliveryNote = "delivery_note"
	DocInvoice      = "invoice"
	DocPayment      = "payment"
	DocReceipt      = "receipt"
	DocAdjustment   = "adjustment"
	DocTransfer     = "transfer"
	DocCreditNote   = "credit_note"
	DocBill         = "bill"
)

var prefixes = map[string]string{
	DocJournalEntry: "JE",
	DocGRN:          "GRN",
	DocDeliveryNote: "DO",
	DocInvoice:      "INV",
	DocPayment:      "PAY",
	DocReceipt:      "RCV",
	DocAdjustment:   "ADJ",
	DocTransfer:     "TRF",
	DocCreditNote:   "CN",
	DocBill:         "BILL",
}

// Sequence is the counter row keyed by (company, document type, year).
type Sequence struct {
	CompanyID uuid.UUID
	DocType   string
	Year      int
	Current   int64
	Version   int64
}

// Reservation is a number computed in the read phase and persisted in the write phase.
type Reservation struct {
	Sequence Sequence
	Next     int64
	Number   string
}

// Prefix resolves the document prefix; unknown types use their first three
// characters.
func Prefix(docType string) string {
	if p, ok := prefixes[docType]; ok {
		return p
	}
	upper := []rune(strings.ToUpper(strings.TrimSpace(docType)))
	if len(upper) > 3 {
		upper = upper[:3]
	}
	return string(upper)
}

// Format renders PREFIX-YEAR-NNNNNN.
func Format(docType string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%06d", Prefix(docType), year, n)
}
