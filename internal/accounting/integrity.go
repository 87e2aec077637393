package accounting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// IntegrityIssue is one violated ledger invariant.
type IntegrityIssue struct {
	Kind   string
	Ref    string
	Detail string
}

// Integrity issue kinds.
const (
	IssueBalanceIdentity = "balance_identity"
	IssueUnbalancedEntry = "unbalanced_entry"
	IssueTotalsMismatch  = "totals_mismatch"
	IssueBrokenReversal  = "broken_reversal"
)

// IntegrityReport summarises a ledger check for one company.
type IntegrityReport struct {
	CompanyID uuid.UUID
	Accounts  int
	Entries   int
	Issues    []IntegrityIssue
}

// OK reports whether no invariant was violated.
func (r IntegrityReport) OK() bool {
	return len(r.Issues) == 0
}

// CheckIntegrity verifies the ledger invariants for a company: every
// account's balance equals debit minus credit, every applied entry balances,
// account totals equal the sum of applied lines and every void is linked to
// its reversal.
func (s *Service) CheckIntegrity(ctx context.Context, companyID uuid.UUID) (IntegrityReport, error) {
	var (
		accounts []Account
		entries  []JournalEntry
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if accounts, err = tx.ListAccounts(ctx, companyID); err != nil {
			return err
		}
		entries, err = tx.ListJournalEntries(ctx, companyID)
		return err
	})
	if err != nil {
		return IntegrityReport{}, err
	}
	return Verify(companyID, accounts, entries), nil
}

// Verify runs the integrity checks over already loaded data.
func Verify(companyID uuid.UUID, accounts []Account, entries []JournalEntry) IntegrityReport {
	report := IntegrityReport{CompanyID: companyID, Accounts: len(accounts), Entries: len(entries)}
	type totals struct{ debit, credit decimal.Decimal }
	applied := make(map[uuid.UUID]totals, len(accounts))
	byID := make(map[uuid.UUID]JournalEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	for _, e := range entries {
		if e.Status == JournalStatusDraft {
			continue
		}
		if !shared.WithinTolerance(e.TotalDebit(), e.TotalCredit()) {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:   IssueUnbalancedEntry,
				Ref:    e.Number,
				Detail: fmt.Sprintf("debit %s credit %s", shared.FormatAmount(e.TotalDebit()), shared.FormatAmount(e.TotalCredit())),
			})
		}
		for _, l := range e.Lines {
			t := applied[l.AccountID]
			t.debit = t.debit.Add(l.Debit)
			t.credit = t.credit.Add(l.Credit)
			applied[l.AccountID] = t
		}
		if e.Status == JournalStatusVoided {
			if e.ReversedBy == nil {
				report.Issues = append(report.Issues, IntegrityIssue{Kind: IssueBrokenReversal, Ref: e.Number, Detail: "voided without reversal"})
				continue
			}
			rev, ok := byID[*e.ReversedBy]
			if !ok || rev.ReversalOf == nil || *rev.ReversalOf != e.ID {
				report.Issues = append(report.Issues, IntegrityIssue{Kind: IssueBrokenReversal, Ref: e.Number, Detail: "reversal missing or not linked back"})
			}
		}
	}

	for _, acc := range accounts {
		if !acc.Balance.Equal(acc.TotalDebit.Sub(acc.TotalCredit)) {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:   IssueBalanceIdentity,
				Ref:    acc.Code,
				Detail: fmt.Sprintf("balance %s != %s - %s", acc.Balance, acc.TotalDebit, acc.TotalCredit),
			})
		}
		t := applied[acc.ID]
		if !acc.TotalDebit.Equal(t.debit) || !acc.TotalCredit.Equal(t.credit) {
			report.Issues = append(report.Issues, IntegrityIssue{
				Kind:   IssueTotalsMismatch,
				Ref:    acc.Code,
				Detail: fmt.Sprintf("stored %s/%s, lines %s/%s", acc.TotalDebit, acc.TotalCredit, t.debit, t.credit),
			})
		}
	}
	return report
}
