package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoided JournalStatus = "VOIDED"
)

// SourceType tags the business document that produced an entry.
type SourceType string

const (
	SourceManual   SourceType = "MANUAL"
	SourceOpening  SourceType = "OPENING"
	SourceReversal SourceType = "REVERSAL"
	SourceGRN      SourceType = "GRN"
	SourceDelivery SourceType = "DO"
	SourceInvoice  SourceType = "INV"
	SourcePayment  SourceType = "PV"
	SourceReceipt  SourceType = "RV"
	SourceAdjust   SourceType = "ADJ"
	SourceTransfer SourceType = "TRF"
	SourceCredit   SourceType = "CN"
	SourceBill     SourceType = "BILL"
)

// ReversalPrefix is prepended to the original number of a reversal entry.
const ReversalPrefix = "REV-"

// Account models a chart of accounts node with its running totals.
type Account struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Code        string
	Name        string
	Type        AccountType
	ParentID    *uuid.UUID
	IsGroup     bool
	IsActive    bool
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Balance     decimal.Decimal
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// JournalEntry captures posting metadata and its ordered lines.
type JournalEntry struct {
	ID          uuid.UUID
	CompanyID   uuid.UUID
	Number      string
	Date        time.Time
	Description string
	Status      JournalStatus
	SourceType  SourceType
	SourceID    string
	ReversalOf  *uuid.UUID
	ReversedBy  *uuid.UUID
	VoidReason  string
	CreatedBy   uuid.UUID
	PostedBy    uuid.UUID
	PostedAt    *time.Time
	VoidedBy    uuid.UUID
	VoidedAt    *time.Time
	Version     int64
	CreatedAt   time.Time
	Lines       []JournalLine
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	LineNo    int
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// TotalDebit sums the debit side.
func (e JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Debit)
	}
	return total
}

// TotalCredit sums the credit side.
func (e JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.Credit)
	}
	return total
}

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// PostingInput groups fields required to create a journal entry. A blank
// Number is assigned from the journal_entry sequence; a blank IdempotencyKey
// is derived from the number.
type PostingInput struct {
	CompanyID      uuid.UUID
	Number         string
	Date           time.Time
	Description    string
	SourceType     SourceType
	SourceID       string
	IdempotencyKey string
	ActorID        uuid.UUID
	Lines          []PostingLineInput
}

// VoidInput wraps parameters for voiding. A zero Date dates the reversal on
// the original entry's date.
type VoidInput struct {
	CompanyID uuid.UUID
	EntryID   uuid.UUID
	Reason    string
	ActorID   uuid.UUID
	Date      time.Time
}

// PostDraftInput identifies a draft to post.
type PostDraftInput struct {
	CompanyID uuid.UUID
	EntryID   uuid.UUID
	ActorID   uuid.UUID
}

// AccountInput describes a chart of accounts node to open.
type AccountInput struct {
	CompanyID uuid.UUID
	Code      string
	Name      string
	Type      AccountType
	ParentID  *uuid.UUID
	IsGroup   bool
	ActorID   uuid.UUID
}

// OpeningBalanceLine is one account's opening position.
type OpeningBalanceLine struct {
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// OpeningBalanceInput posts the opening position of a company's ledger.
type OpeningBalanceInput struct {
	CompanyID     uuid.UUID
	EffectiveDate time.Time
	ActorID       uuid.UUID
	Lines         []OpeningBalanceLine
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: accounting: journal lines must balance", shared.ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: accounting: journal requires at least two lines", shared.ErrValidation)
	// ErrAccountNotFound indicates a missing or foreign account.
	ErrAccountNotFound = fmt.Errorf("%w: accounting: account not found", shared.ErrNotFound)
	// ErrAccountNotPostable indicates a group or inactive account on a line.
	ErrAccountNotPostable = fmt.Errorf("%w: accounting: account does not accept postings", shared.ErrValidation)
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("%w: accounting: journal entry not found", shared.ErrNotFound)
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = fmt.Errorf("%w: accounting: invalid status transition", shared.ErrState)
	// ErrDuplicateCode indicates an account code already used in the company.
	ErrDuplicateCode = fmt.Errorf("%w: accounting: account code already exists", shared.ErrValidation)
	// ErrDuplicateNumber indicates a journal number already used in the company.
	ErrDuplicateNumber = fmt.Errorf("%w: accounting: journal number already exists", shared.ErrValidation)
)

var validAccountTypes = map[AccountType]struct{}{
	AccountTypeAsset:     {},
	AccountTypeLiability: {},
	AccountTypeEquity:    {},
	AccountTypeRevenue:   {},
	AccountTypeExpense:   {},
}

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if in.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: accounting: company required", shared.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: accounting: date required", shared.ErrValidation)
	}
	return ValidateBalance(in.Lines)
}

// Validate ensures the account request is well formed.
func (in AccountInput) Validate() error {
	if in.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: accounting: company required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: accounting: account code and name required", shared.ErrValidation)
	}
	if _, ok := validAccountTypes[in.Type]; !ok {
		return fmt.Errorf("%w: accounting: unknown account type %q", shared.ErrValidation, in.Type)
	}
	return nil
}

// Validate ensures the void request is well formed.
func (in VoidInput) Validate() error {
	if in.CompanyID == uuid.Nil || in.EntryID == uuid.Nil {
		return fmt.Errorf("%w: accounting: company and entry id required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.Reason) == "" {
		return fmt.Errorf("%w: accounting: void reason required", shared.ErrValidation)
	}
	return nil
}

// ReversalNumber derives the number of the entry that voids number.
func ReversalNumber(number string) string {
	return ReversalPrefix + number
}
