package numbering_test

import (
	"context"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

func TestFormat(t *testing.T) {
	require.Equal(t, "JE-2025-000001", numbering.Format(numbering.DocJournalEntry, 2025, 1))
	require.Equal(t, "GRN-2024-001234", numbering.Format(numbering.DocGRN, 2024, 1234))
	require.Equal(t, "QUO-2025-000007", numbering.Format("quotation", 2025, 7))
	require.Equal(t, "BILL-2025-000002", numbering.Format(numbering.DocBill, 2025, 2))
}

func TestPrefixKeepsWholeCharacters(t *testing.T) {
	require.Equal(t, "ÉTI", numbering.Prefix("étiquette"))
	require.True(t, utf8.ValidString(numbering.Prefix("ñandú")))
	require.Equal(t, "ÑAN", numbering.Prefix("ñandú"))
	require.Equal(t, "PO", numbering.Prefix(" po "))
}

func TestNextNumberPerYearAndType(t *testing.T) {
	store := memory.New()
	svc := numbering.NewService(store.Numbering())
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	ctx := context.Background()
	company := uuid.New()

	first, err := svc.NextNumber(ctx, company, numbering.DocInvoice, 0)
	require.NoError(t, err)
	require.Equal(t, "INV-2025-000001", first)
	second, err := svc.NextNumber(ctx, company, numbering.DocInvoice, 2025)
	require.NoError(t, err)
	require.Equal(t, "INV-2025-000002", second)

	other, err := svc.NextNumber(ctx, company, numbering.DocInvoice, 2026)
	require.NoError(t, err)
	require.Equal(t, "INV-2026-000001", other)
	grn, err := svc.NextNumber(ctx, company, numbering.DocGRN, 2025)
	require.NoError(t, err)
	require.Equal(t, "GRN-2025-000001", grn)

	current, err := svc.CurrentNumber(ctx, company, numbering.DocInvoice, 2025)
	require.NoError(t, err)
	require.EqualValues(t, 2, current)
}

func TestNextNumberValidation(t *testing.T) {
	svc := numbering.NewService(memory.New().Numbering())
	ctx := context.Background()

	_, err := svc.NextNumber(ctx, uuid.Nil, numbering.DocInvoice, 2025)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.NextNumber(ctx, uuid.New(), " ", 2025)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.NextNumber(ctx, uuid.New(), numbering.DocInvoice, 10000)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNextNumberConcurrentCallersUnique(t *testing.T) {
	store := memory.New(memory.WithAttempts(200))
	svc := numbering.NewService(store.Numbering())
	ctx := context.Background()
	company := uuid.New()

	const callers = 50
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, callers)
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			n, err := svc.NextNumber(ctx, company, numbering.DocJournalEntry, 2025)
			if err != nil {
				return err
			}
			mu.Lock()
			seen[n] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, seen, callers)

	current, err := svc.CurrentNumber(context.Background(), company, numbering.DocJournalEntry, 2025)
	require.NoError(t, err)
	require.EqualValues(t, callers, current)
	_, ok := seen[numbering.Format(numbering.DocJournalEntry, 2025, callers)]
	require.True(t, ok)
}
