package accounting_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

func TestTrialBalanceGroupsByType(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	env.Post(t, env.Lines(fixture.Cash, fixture.Equity, "1000"))
	env.Post(t, env.Lines(fixture.Expense, fixture.Cash, "120.25"))
	env.Post(t, env.Lines(fixture.Receivable, fixture.Revenue, "300"))

	tb, err := env.Ledger.TrialBalance(context.Background(), env.Company)
	require.NoError(t, err)
	require.True(t, tb.Balanced())
	fixture.Equal(t, "1420.25", tb.TotalDebit)
	fixture.Equal(t, "1420.25", tb.TotalCredit)

	types := make([]accounting.AccountType, 0, len(tb.Groups))
	for _, g := range tb.Groups {
		types = append(types, g.Type)
	}
	require.Equal(t, []accounting.AccountType{
		accounting.AccountTypeAsset,
		accounting.AccountTypeLiability,
		accounting.AccountTypeEquity,
		accounting.AccountTypeRevenue,
		accounting.AccountTypeExpense,
	}, types)

	assets := tb.Groups[0]
	require.Len(t, assets.Rows, 3)
	require.Equal(t, fixture.Cash, assets.Rows[0].Code)
	fixture.Equal(t, "879.75", assets.Rows[0].Balance)
	fixture.Equal(t, "1179.75", assets.Balance)
}

func TestBuildTrialBalanceSkipsGroupAccounts(t *testing.T) {
	tb := accounting.BuildTrialBalance([]accounting.Account{
		{Code: "1", Type: accounting.AccountTypeAsset, IsGroup: true},
		{Code: "1000", Type: accounting.AccountTypeAsset, TotalDebit: fixture.D("5"), Balance: fixture.D("5")},
		{Code: "2000", Type: accounting.AccountTypeLiability, TotalCredit: fixture.D("4"), Balance: fixture.D("-4")},
	})
	require.False(t, tb.Balanced())
	require.Len(t, tb.Groups, 2)
	require.Len(t, tb.Groups[0].Rows, 1)
}
