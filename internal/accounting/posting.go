package accounting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountReader loads account snapshots in the read phase.
type AccountReader interface {
	GetAccounts(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]Account, error)
}

// AccountWriter persists account totals in the write phase. SaveAccount fails
// with shared.ErrConcurrency when the stored version differs from acc.Version.
type AccountWriter interface {
	SaveAccount(ctx context.Context, acc Account) error
}

// Posting holds the final account states computed from a snapshot.
type Posting struct {
	CompanyID uuid.UUID
	Lines     []JournalLine
	order     []uuid.UUID
	accounts  map[uuid.UUID]Account
}

// Account returns the computed final state of id.
func (p *Posting) Account(id uuid.UUID) (Account, bool) {
	acc, ok := p.accounts[id]
	return acc, ok
}

// Accounts returns the final states in first-touched order.
func (p *Posting) Accounts() []Account {
	out := make([]Account, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.accounts[id])
	}
	return out
}

// Engine applies balanced journal lines to account totals. Every touched
// account is read once, its final totals are computed in memory and then
// written once; balances are never incremented blindly.
type Engine struct{}

// NewEngine returns the posting engine.
func NewEngine() *Engine {
	return &Engine{}
}

// ValidateBalance checks line shape and that total debit equals total credit
// within shared.BalanceTolerance.
func ValidateBalance(lines []PostingLineInput) error {
	return checkLines(buildLines(lines))
}

// IsBalanced reports whether lines pass ValidateBalance.
func IsBalanced(lines []PostingLineInput) bool {
	return ValidateBalance(lines) == nil
}

// Prepare is the read phase: it snapshots each distinct account once and
// folds the lines into final totals.
func (e *Engine) Prepare(ctx context.Context, tx AccountReader, companyID uuid.UUID, lines []JournalLine) (*Posting, error) {
	if err := checkLines(lines); err != nil {
		return nil, err
	}
	order := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		order = append(order, line.AccountID)
	}
	snapshot, err := tx.GetAccounts(ctx, companyID, order)
	if err != nil {
		return nil, err
	}
	accounts := make(map[uuid.UUID]Account, len(order))
	for _, id := range order {
		acc, ok := snapshot[id]
		if !ok || acc.CompanyID != companyID {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		if acc.IsGroup || !acc.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotPostable, acc.Code)
		}
		accounts[id] = acc
	}
	for _, line := range lines {
		acc := accounts[line.AccountID]
		acc.TotalDebit = shared.Round(acc.TotalDebit.Add(line.Debit))
		acc.TotalCredit = shared.Round(acc.TotalCredit.Add(line.Credit))
		acc.Balance = acc.TotalDebit.Sub(acc.TotalCredit)
		accounts[line.AccountID] = acc
	}
	return &Posting{CompanyID: companyID, Lines: lines, order: order, accounts: accounts}, nil
}

// Apply is the write phase: each account's final state is written once.
func (e *Engine) Apply(ctx context.Context, tx AccountWriter, posting *Posting) error {
	if posting == nil {
		return nil
	}
	for _, acc := range posting.Accounts() {
		if err := tx.SaveAccount(ctx, acc); err != nil {
			return err
		}
	}
	return nil
}

// SwapLines returns lines with debit and credit exchanged, same accounts and order.
func SwapLines(lines []JournalLine) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			LineNo:    line.LineNo,
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
			Memo:      line.Memo,
		})
	}
	return out
}

func buildLines(in []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(in))
	for idx, line := range in {
		out = append(out, JournalLine{
			LineNo:    idx + 1,
			AccountID: line.AccountID,
			Debit:     shared.Round(line.Debit),
			Credit:    shared.Round(line.Credit),
			Memo:      line.Memo,
		})
	}
	return out
}

func checkLines(lines []JournalLine) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		if line.AccountID == uuid.Nil {
			return fmt.Errorf("%w: accounting: line %d missing account", shared.ErrValidation, line.LineNo)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: accounting: line %d negative amount", shared.ErrValidation, line.LineNo)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: accounting: line %d cannot be both debit and credit", shared.ErrValidation, line.LineNo)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: accounting: line %d has no amount", shared.ErrValidation, line.LineNo)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !shared.WithinTolerance(debit, credit) {
		return fmt.Errorf("%w (debit %s, credit %s)", ErrUnbalanced, shared.FormatAmount(debit), shared.FormatAmount(credit))
	}
	return nil
}
