package accounting

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TrialBalanceRow is one postable account's position.
type TrialBalanceRow struct {
	Code    string
	Name    string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Balance decimal.Decimal
}

// TrialBalanceGroup aggregates the rows of one account type.
type TrialBalanceGroup struct {
	Type    AccountType
	Rows    []TrialBalanceRow
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Balance decimal.Decimal
}

// TrialBalance lists every postable account grouped by type.
type TrialBalance struct {
	Groups      []TrialBalanceGroup
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether total debits equal total credits within tolerance.
func (tb TrialBalance) Balanced() bool {
	return shared.WithinTolerance(tb.TotalDebit, tb.TotalCredit)
}

var typeOrder = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeEquity,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// BuildTrialBalance converts account totals into grouped trial balance data.
// Group accounts never carry postings and are skipped.
func BuildTrialBalance(accounts []Account) TrialBalance {
	groups := make(map[AccountType]*TrialBalanceGroup)
	tb := TrialBalance{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, acc := range accounts {
		if acc.IsGroup {
			continue
		}
		grp, ok := groups[acc.Type]
		if !ok {
			grp = &TrialBalanceGroup{Type: acc.Type, Debit: decimal.Zero, Credit: decimal.Zero, Balance: decimal.Zero}
			groups[acc.Type] = grp
		}
		grp.Rows = append(grp.Rows, TrialBalanceRow{
			Code:    acc.Code,
			Name:    acc.Name,
			Debit:   acc.TotalDebit,
			Credit:  acc.TotalCredit,
			Balance: acc.Balance,
		})
		grp.Debit = grp.Debit.Add(acc.TotalDebit)
		grp.Credit = grp.Credit.Add(acc.TotalCredit)
		grp.Balance = grp.Balance.Add(acc.Balance)
		tb.TotalDebit = tb.TotalDebit.Add(acc.TotalDebit)
		tb.TotalCredit = tb.TotalCredit.Add(acc.TotalCredit)
	}
	for _, typ := range typeOrder {
		grp, ok := groups[typ]
		if !ok {
			continue
		}
		sort.Slice(grp.Rows, func(i, j int) bool { return grp.Rows[i].Code < grp.Rows[j].Code })
		tb.Groups = append(tb.Groups, *grp)
	}
	return tb
}

// TrialBalance reads the company's chart and builds its trial balance.
func (s *Service) TrialBalance(ctx context.Context, companyID uuid.UUID) (TrialBalance, error) {
	accounts, err := s.ListAccounts(ctx, companyID)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(accounts), nil
}
