package close_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

var feb15 = time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)

func closeFeb(t *testing.T, env *fixture.Env) {
	t.Helper()
	_, err := env.Periods.ClosePeriod(context.Background(), closepkg.PeriodInput{
		CompanyID: env.Company, Year: 2026, Month: 2, ActorID: env.Actor,
	})
	require.NoError(t, err)
}

func TestCloseAndReopen(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	open, err := env.Periods.IsPeriodOpen(ctx, env.Company, feb15)
	require.NoError(t, err)
	require.True(t, open)

	closeFeb(t, env)
	open, err = env.Periods.IsPeriodOpen(ctx, env.Company, feb15)
	require.NoError(t, err)
	require.False(t, open)

	period, err := env.Periods.GetPeriod(ctx, env.Company, 2026, 2)
	require.NoError(t, err)
	require.Equal(t, closepkg.PeriodStatusClosed, period.Status)
	require.Equal(t, env.Actor, period.ClosedBy)
	require.Equal(t, "2026-02", period.Key())

	_, err = env.Periods.ClosePeriod(ctx, closepkg.PeriodInput{CompanyID: env.Company, Year: 2026, Month: 2})
	require.ErrorIs(t, err, closepkg.ErrAlreadyClosed)

	reopened, err := env.Periods.ReopenPeriod(ctx, closepkg.PeriodInput{CompanyID: env.Company, Year: 2026, Month: 2, ActorID: env.Actor})
	require.NoError(t, err)
	require.Equal(t, closepkg.PeriodStatusOpen, reopened.Status)
	require.NotNil(t, reopened.ReopenedAt)

	require.Equal(t, []string{"period.close", "period.reopen"}, filter(env.Audit.Actions(), "period."))
}

func TestReopenMissingPeriod(t *testing.T) {
	env := fixture.New(t, fixture.Options{})

	_, err := env.Periods.ReopenPeriod(context.Background(), closepkg.PeriodInput{CompanyID: env.Company, Year: 2026, Month: 5})
	require.ErrorIs(t, err, closepkg.ErrReopenMissing)
	require.ErrorIs(t, err, shared.ErrState)
}

func TestPeriodInputValidation(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	for _, month := range []int{0, 13} {
		_, err := env.Periods.ClosePeriod(context.Background(), closepkg.PeriodInput{CompanyID: env.Company, Year: 2026, Month: month})
		require.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestParseGatePolicy(t *testing.T) {
	cases := map[string]closepkg.GatePolicy{
		"":        closepkg.GateAll,
		"all":     closepkg.GateAll,
		" Manual": closepkg.GateManual,
	}
	for raw, want := range cases {
		got, err := closepkg.ParseGatePolicy(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := closepkg.ParseGatePolicy("sometimes")
	require.Error(t, err)

	require.True(t, closepkg.GateManual.Gates("manual"))
	require.True(t, closepkg.GateManual.Gates("REVERSAL"))
	require.False(t, closepkg.GateManual.Gates("GRN"))
	require.True(t, closepkg.GateAll.Gates("GRN"))
}

func voucher(env *fixture.Env) integration.PaymentVoucherRequest {
	return integration.PaymentVoucherRequest{
		CompanyID:         env.Company,
		Date:              feb15,
		DebitAccountID:    env.Account(fixture.Expense),
		CashBankAccountID: env.Account(fixture.Cash),
		Amount:            fixture.D("80"),
		Description:       "rent",
	}
}

func TestGateAllBlocksDocuments(t *testing.T) {
	env := fixture.New(t, fixture.Options{Gate: closepkg.GateAll})
	closeFeb(t, env)

	_, err := env.Docs.PaymentVoucher(context.Background(), voucher(env))
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	fixture.Equal(t, "0", env.Balance(t, fixture.Expense).Balance)

	current, err := env.Numbers.CurrentNumber(context.Background(), env.Company, "payment", 2026)
	require.NoError(t, err)
	require.Zero(t, current)
}

func TestGateManualLetsDocumentsThrough(t *testing.T) {
	env := fixture.New(t, fixture.Options{Gate: closepkg.GateManual})
	closeFeb(t, env)
	ctx := context.Background()

	res, err := env.Docs.PaymentVoucher(ctx, voucher(env))
	require.NoError(t, err)
	require.Equal(t, accounting.SourcePayment, res.Entry.SourceType)
	fixture.Equal(t, "80", env.Balance(t, fixture.Expense).Balance)

	_, err = env.Ledger.PostJournal(ctx, accounting.PostingInput{
		CompanyID: env.Company,
		Date:      feb15,
		Lines:     env.Lines(fixture.Cash, fixture.Equity, "1"),
	})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	_, err = env.Ledger.VoidJournal(ctx, accounting.VoidInput{CompanyID: env.Company, EntryID: res.Entry.ID, Reason: "wrong"})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func filter(actions []string, prefix string) []string {
	var out []string
	for _, a := range actions {
		if len(a) >= len(prefix) && a[:len(prefix)] == prefix {
			out = append(out, a)
		}
	}
	return out
}

func TestIsPeriodOpenRequiresCompany(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	open, err := env.Periods.IsPeriodOpen(context.Background(), uuid.Nil, feb15)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.False(t, open)
}
