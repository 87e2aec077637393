package accounting_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

func TestPostJournalUpdatesBalances(t *testing.T) {
	env := fixture.New(t, fixture.Options{})

	entry := env.Post(t, env.Lines(fixture.Cash, fixture.Equity, "500"))

	require.Equal(t, accounting.JournalStatusPosted, entry.Status)
	require.Equal(t, "JE-2025-000001", entry.Number)
	require.Len(t, entry.Lines, 2)
	cash := env.Balance(t, fixture.Cash)
	fixture.Equal(t, "500", cash.Balance)
	fixture.Equal(t, "500", cash.TotalDebit)
	equity := env.Balance(t, fixture.Equity)
	fixture.Equal(t, "-500", equity.Balance)
	fixture.Equal(t, "500", equity.TotalCredit)
	require.Contains(t, env.Audit.Actions(), "journal.post")
}

func TestPostJournalRejectsUnbalanced(t *testing.T) {
	env := fixture.New(t, fixture.Options{})

	_, err := env.Ledger.PostJournal(context.Background(), accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines: []accounting.PostingLineInput{
			{AccountID: env.Account(fixture.Cash), Debit: fixture.D("500")},
			{AccountID: env.Account(fixture.Equity), Credit: fixture.D("400")},
		},
	})
	require.ErrorIs(t, err, accounting.ErrUnbalanced)
	require.ErrorIs(t, err, shared.ErrValidation)

	fixture.Equal(t, "0", env.Balance(t, fixture.Cash).Balance)
	fixture.Equal(t, "0", env.Balance(t, fixture.Equity).Balance)
	entries, err := env.Ledger.ListJournalEntries(context.Background(), env.Company)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPostJournalLineRules(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	cash, equity := env.Account(fixture.Cash), env.Account(fixture.Equity)

	cases := []struct {
		name  string
		lines []accounting.PostingLineInput
		want  error
	}{
		{
			name:  "single line",
			lines: []accounting.PostingLineInput{{AccountID: cash, Debit: fixture.D("1")}},
			want:  accounting.ErrTooFewLines,
		},
		{
			name: "both sides on one line",
			lines: []accounting.PostingLineInput{
				{AccountID: cash, Debit: fixture.D("1"), Credit: fixture.D("1")},
				{AccountID: equity, Credit: fixture.D("0")},
			},
			want: shared.ErrValidation,
		},
		{
			name: "negative amount",
			lines: []accounting.PostingLineInput{
				{AccountID: cash, Debit: fixture.D("-5")},
				{AccountID: equity, Credit: fixture.D("-5")},
			},
			want: shared.ErrValidation,
		},
		{
			name: "group account",
			lines: []accounting.PostingLineInput{
				{AccountID: env.Account(fixture.AssetsGroup), Debit: fixture.D("5")},
				{AccountID: equity, Credit: fixture.D("5")},
			},
			want: accounting.ErrAccountNotPostable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Ledger.PostJournal(context.Background(), accounting.PostingInput{
				CompanyID: env.Company,
				Date:      fixture.Clock,
				Lines:     tc.lines,
			})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPostJournalWithinTolerance(t *testing.T) {
	env := fixture.New(t, fixture.Options{})

	_, err := env.Ledger.PostJournal(context.Background(), accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines: []accounting.PostingLineInput{
			{AccountID: env.Account(fixture.Cash), Debit: fixture.D("100.0001")},
			{AccountID: env.Account(fixture.Equity), Credit: fixture.D("100")},
		},
	})
	require.NoError(t, err)

	_, err = env.Ledger.PostJournal(context.Background(), accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines: []accounting.PostingLineInput{
			{AccountID: env.Account(fixture.Cash), Debit: fixture.D("100.0002")},
			{AccountID: env.Account(fixture.Equity), Credit: fixture.D("100")},
		},
	})
	require.ErrorIs(t, err, accounting.ErrUnbalanced)
}

func TestPostJournalSameAccountTwice(t *testing.T) {
	env := fixture.New(t, fixture.Options{})

	env.Post(t, []accounting.PostingLineInput{
		{AccountID: env.Account(fixture.Cash), Debit: fixture.D("30")},
		{AccountID: env.Account(fixture.Cash), Debit: fixture.D("20")},
		{AccountID: env.Account(fixture.Equity), Credit: fixture.D("50")},
	})

	cash := env.Balance(t, fixture.Cash)
	fixture.Equal(t, "50", cash.Balance)
	require.EqualValues(t, 2, cash.Version)
}

func TestVoidJournalPostsReversal(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	original := env.Post(t, env.Lines(fixture.Cash, fixture.Equity, "500"))

	res, err := env.Ledger.VoidJournal(context.Background(), accounting.VoidInput{
		CompanyID: env.Company,
		EntryID:   original.ID,
		Reason:    "keyed twice",
		ActorID:   env.Actor,
	})
	require.NoError(t, err)

	require.Equal(t, accounting.JournalStatusVoided, res.Original.Status)
	require.NotNil(t, res.Original.ReversedBy)
	require.Equal(t, res.Reversal.ID, *res.Original.ReversedBy)
	require.Equal(t, "REV-"+original.Number, res.Reversal.Number)
	require.Equal(t, accounting.SourceReversal, res.Reversal.SourceType)
	require.Equal(t, original.ID, *res.Reversal.ReversalOf)
	for i, line := range res.Reversal.Lines {
		require.Equal(t, original.Lines[i].AccountID, line.AccountID)
		require.True(t, original.Lines[i].Debit.Equal(line.Credit))
		require.True(t, original.Lines[i].Credit.Equal(line.Debit))
	}

	cash := env.Balance(t, fixture.Cash)
	fixture.Equal(t, "0", cash.Balance)
	fixture.Equal(t, "500", cash.TotalDebit)
	fixture.Equal(t, "500", cash.TotalCredit)
	fixture.Equal(t, "0", env.Balance(t, fixture.Equity).Balance)

	stored, err := env.Ledger.GetJournal(context.Background(), env.Company, original.ID)
	require.NoError(t, err)
	require.Equal(t, accounting.JournalStatusVoided, stored.Status)
	require.Equal(t, "keyed twice", stored.VoidReason)
	require.Len(t, stored.Lines, 2)
	fixture.Equal(t, "500", stored.Lines[0].Debit)
}

func TestVoidJournalRejectsRepeat(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	original := env.Post(t, env.Lines(fixture.Cash, fixture.Equity, "75"))
	in := accounting.VoidInput{CompanyID: env.Company, EntryID: original.ID, Reason: "wrong"}

	_, err := env.Ledger.VoidJournal(context.Background(), in)
	require.NoError(t, err)
	_, err = env.Ledger.VoidJournal(context.Background(), in)
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
	require.ErrorIs(t, err, shared.ErrState)

	fixture.Equal(t, "0", env.Balance(t, fixture.Cash).Balance)
}

func TestVoidJournalRequiresReason(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	original := env.Post(t, env.Lines(fixture.Cash, fixture.Equity, "75"))

	_, err := env.Ledger.VoidJournal(context.Background(), accounting.VoidInput{CompanyID: env.Company, EntryID: original.ID})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestVoidOfReversalReappliesOriginal(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	original := env.Post(t, env.Lines(fixture.Cash, fixture.Equity, "10"))
	res, err := env.Ledger.VoidJournal(context.Background(), accounting.VoidInput{CompanyID: env.Company, EntryID: original.ID, Reason: "x"})
	require.NoError(t, err)

	again, err := env.Ledger.VoidJournal(context.Background(), accounting.VoidInput{CompanyID: env.Company, EntryID: res.Reversal.ID, Reason: "undo void"})
	require.NoError(t, err)
	require.Equal(t, "REV-REV-"+original.Number, again.Reversal.Number)
	fixture.Equal(t, "10", env.Balance(t, fixture.Cash).Balance)
}

func TestPostJournalClosedPeriod(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()
	_, err := env.Periods.ClosePeriod(ctx, closepkg.PeriodInput{CompanyID: env.Company, Year: 2026, Month: 2, ActorID: env.Actor})
	require.NoError(t, err)

	_, err = env.Ledger.PostJournal(ctx, accounting.PostingInput{
		CompanyID: env.Company,
		Date:      time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC),
		Lines:     env.Lines(fixture.Cash, fixture.Equity, "500"),
	})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)
	require.Contains(t, err.Error(), "2026-02")

	fixture.Equal(t, "0", env.Balance(t, fixture.Cash).Balance)
	entries, err := env.Ledger.ListJournalEntries(ctx, env.Company)
	require.NoError(t, err)
	require.Empty(t, entries)
	current, err := env.Numbers.CurrentNumber(ctx, env.Company, "journal_entry", 2026)
	require.NoError(t, err)
	require.Zero(t, current)

	_, err = env.Periods.ReopenPeriod(ctx, closepkg.PeriodInput{CompanyID: env.Company, Year: 2026, Month: 2, ActorID: env.Actor})
	require.NoError(t, err)
	_, err = env.Ledger.PostJournal(ctx, accounting.PostingInput{
		CompanyID: env.Company,
		Date:      time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC),
		Lines:     env.Lines(fixture.Cash, fixture.Equity, "500"),
	})
	require.NoError(t, err)
}

func TestVoidIntoClosedPeriod(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()
	original := env.Post(t, env.Lines(fixture.Cash, fixture.Equity, "40"))
	_, err := env.Periods.ClosePeriod(ctx, closepkg.PeriodInput{CompanyID: env.Company, Year: 2025, Month: 3})
	require.NoError(t, err)

	_, err = env.Ledger.VoidJournal(ctx, accounting.VoidInput{CompanyID: env.Company, EntryID: original.ID, Reason: "late"})
	require.ErrorIs(t, err, shared.ErrPeriodClosed)

	res, err := env.Ledger.VoidJournal(ctx, accounting.VoidInput{
		CompanyID: env.Company,
		EntryID:   original.ID,
		Reason:    "late",
		Date:      time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, 4, int(res.Reversal.Date.Month()))
}

func TestPostJournalIdempotencyKey(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()
	in := accounting.PostingInput{
		CompanyID:      env.Company,
		Date:           fixture.Clock,
		IdempotencyKey: "import-42",
		Lines:          env.Lines(fixture.Cash, fixture.Equity, "90"),
	}

	_, err := env.Ledger.PostJournal(ctx, in)
	require.NoError(t, err)
	_, err = env.Ledger.PostJournal(ctx, in)
	require.ErrorIs(t, err, shared.ErrDuplicateOperation)

	fixture.Equal(t, "90", env.Balance(t, fixture.Cash).Balance)
	entries, err := env.Ledger.ListJournalEntries(ctx, env.Company)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPostJournalDuplicateNumber(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()
	in := accounting.PostingInput{
		CompanyID: env.Company,
		Number:    "JV-7",
		Date:      fixture.Clock,
		Lines:     env.Lines(fixture.Cash, fixture.Equity, "1"),
	}
	_, err := env.Ledger.PostJournal(ctx, in)
	require.NoError(t, err)

	in.IdempotencyKey = "other"
	_, err = env.Ledger.PostJournal(ctx, in)
	require.ErrorIs(t, err, accounting.ErrDuplicateNumber)
}

func TestDraftLifecycle(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	draft, err := env.Ledger.CreateDraft(ctx, accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines:     env.Lines(fixture.Expense, fixture.Cash, "12.5"),
	})
	require.NoError(t, err)
	require.Equal(t, accounting.JournalStatusDraft, draft.Status)
	fixture.Equal(t, "0", env.Balance(t, fixture.Expense).Balance)

	posted, err := env.Ledger.PostDraft(ctx, accounting.PostDraftInput{CompanyID: env.Company, EntryID: draft.ID})
	require.NoError(t, err)
	require.Equal(t, accounting.JournalStatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	fixture.Equal(t, "12.5", env.Balance(t, fixture.Expense).Balance)
	fixture.Equal(t, "-12.5", env.Balance(t, fixture.Cash).Balance)

	_, err = env.Ledger.PostDraft(ctx, accounting.PostDraftInput{CompanyID: env.Company, EntryID: draft.ID})
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
}

func TestDraftUnbalancedFailsOnPost(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	draft, err := env.Ledger.CreateDraft(ctx, accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines: []accounting.PostingLineInput{
			{AccountID: env.Account(fixture.Expense), Debit: fixture.D("10")},
		},
	})
	require.NoError(t, err)

	_, err = env.Ledger.PostDraft(ctx, accounting.PostDraftInput{CompanyID: env.Company, EntryID: draft.ID})
	require.ErrorIs(t, err, accounting.ErrTooFewLines)

	stored, err := env.Ledger.GetJournal(ctx, env.Company, draft.ID)
	require.NoError(t, err)
	require.Equal(t, accounting.JournalStatusDraft, stored.Status)
}

func TestVoidDraftRejected(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()
	draft, err := env.Ledger.CreateDraft(ctx, accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines:     env.Lines(fixture.Expense, fixture.Cash, "1"),
	})
	require.NoError(t, err)

	_, err = env.Ledger.VoidJournal(ctx, accounting.VoidInput{CompanyID: env.Company, EntryID: draft.ID, Reason: "x"})
	require.ErrorIs(t, err, accounting.ErrInvalidStatus)
}

func TestPostOpeningBalancesOnce(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()
	in := accounting.OpeningBalanceInput{
		CompanyID:     env.Company,
		EffectiveDate: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		Lines: []accounting.OpeningBalanceLine{
			{AccountID: env.Account(fixture.Cash), Debit: fixture.D("1000")},
			{AccountID: env.Account(fixture.Stock), Debit: fixture.D("250")},
			{AccountID: env.Account(fixture.Equity), Credit: fixture.D("1250")},
		},
	}

	entry, err := env.Ledger.PostOpeningBalances(ctx, in)
	require.NoError(t, err)
	require.Equal(t, accounting.SourceOpening, entry.SourceType)
	require.Equal(t, "2025-01-01", entry.SourceID)

	_, err = env.Ledger.PostOpeningBalances(ctx, in)
	require.ErrorIs(t, err, shared.ErrDuplicateOperation)
	fixture.Equal(t, "1000", env.Balance(t, fixture.Cash).Balance)
}

func TestOpenAccountRules(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	_, err := env.Ledger.OpenAccount(ctx, accounting.AccountInput{
		CompanyID: env.Company, Code: fixture.Cash, Name: "Dup", Type: accounting.AccountTypeAsset,
	})
	require.ErrorIs(t, err, accounting.ErrDuplicateCode)

	cash := env.Account(fixture.Cash)
	_, err = env.Ledger.OpenAccount(ctx, accounting.AccountInput{
		CompanyID: env.Company, Code: "1001", Name: "Petty", Type: accounting.AccountTypeAsset, ParentID: &cash,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = env.Ledger.OpenAccount(ctx, accounting.AccountInput{
		CompanyID: env.Company, Code: "9", Name: "Odd", Type: "MYSTERY",
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeactivatedAccountRejectsPostings(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	acc, err := env.Ledger.DeactivateAccount(ctx, env.Company, env.Account(fixture.Expense), env.Actor)
	require.NoError(t, err)
	require.False(t, acc.IsActive)

	_, err = env.Ledger.PostJournal(ctx, accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines:     env.Lines(fixture.Expense, fixture.Cash, "5"),
	})
	require.ErrorIs(t, err, accounting.ErrAccountNotPostable)
}

func TestForeignAccountNotFound(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	other := fixture.New(t, fixture.Options{})

	_, err := env.Ledger.PostJournal(context.Background(), accounting.PostingInput{
		CompanyID: env.Company,
		Date:      fixture.Clock,
		Lines: []accounting.PostingLineInput{
			{AccountID: env.Account(fixture.Cash), Debit: fixture.D("5")},
			{AccountID: other.Account(fixture.Equity), Credit: fixture.D("5")},
		},
	})
	require.True(t, errors.Is(err, shared.ErrNotFound))
}
