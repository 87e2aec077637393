package integration_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

var warehouse = uuid.MustParse("33333333-3333-3333-3333-333333333333")

func receive(t *testing.T, env *fixture.Env, item inventory.Item, qty, cost string) integration.Result {
	t.Helper()
	res, err := env.Docs.ReceiveGoods(context.Background(), integration.ReceiveGoodsRequest{
		CompanyID:         env.Company,
		Date:              fixture.Clock,
		SupplierAccountID: env.Account(fixture.Payable),
		Lines: []integration.ReceiveLine{
			{ItemID: item.ID, WarehouseID: warehouse, Quantity: fixture.D(qty), UnitCost: fixture.D(cost)},
		},
	})
	require.NoError(t, err)
	return res
}

func TestReceiveGoodsPostsStockAndLedger(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "BOLT")

	first := receive(t, env, item, "100", "10")
	require.Equal(t, "GRN-2025-000001", first.Number)
	require.Equal(t, accounting.SourceGRN, first.Entry.SourceType)
	require.Equal(t, first.Number, first.Entry.SourceID)
	require.Equal(t, "JE-2025-000001", first.Entry.Number)
	require.Len(t, first.StockEntries, 1)
	require.Equal(t, "GRN", first.StockEntries[0].SourceType)

	second := receive(t, env, item, "50", "16")
	fixture.Equal(t, "12", second.Items[0].CurrentWAC)
	fixture.Equal(t, "1800", env.Balance(t, fixture.Stock).Balance)
	fixture.Equal(t, "-1800", env.Balance(t, fixture.Payable).Balance)
	require.Contains(t, env.Audit.Actions(), "document.post")
}

func TestDeliverGoodsPostsCOGSAndSale(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "BOLT")
	receive(t, env, item, "100", "10")
	receive(t, env, item, "50", "16")
	customer := uuid.New()

	res, err := env.Docs.DeliverGoods(context.Background(), integration.DeliverGoodsRequest{
		CompanyID:           env.Company,
		Date:                fixture.Clock,
		ReceivableAccountID: env.Account(fixture.Receivable),
		CustomerID:          &customer,
		Lines: []integration.DeliverLine{
			{ItemID: item.ID, WarehouseID: warehouse, Quantity: fixture.D("30"), UnitPrice: fixture.D("20")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "DO-2025-000001", res.Number)
	require.Equal(t, accounting.SourceDelivery, res.Entry.SourceType)
	fixture.Equal(t, "1440", res.Items[0].TotalValue)
	fixture.Equal(t, "12", res.Items[0].CurrentWAC)
	require.Equal(t, customer, *res.StockEntries[0].CustomerID)

	fixture.Equal(t, "360", env.Balance(t, fixture.COGS).Balance)
	fixture.Equal(t, "1440", env.Balance(t, fixture.Stock).Balance)
	fixture.Equal(t, "600", env.Balance(t, fixture.Receivable).Balance)
	fixture.Equal(t, "-600", env.Balance(t, fixture.Revenue).Balance)
	fixture.Equal(t, "600", res.Entry.TotalDebit().Sub(fixture.D("360")))
}

func TestDeliverGoodsNegativeStockLeavesNoTrace(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "BOLT")
	receive(t, env, item, "5", "10")

	_, err := env.Docs.DeliverGoods(context.Background(), integration.DeliverGoodsRequest{
		CompanyID:           env.Company,
		Date:                fixture.Clock,
		ReceivableAccountID: env.Account(fixture.Receivable),
		Lines: []integration.DeliverLine{
			{ItemID: item.ID, WarehouseID: warehouse, Quantity: fixture.D("6"), UnitPrice: fixture.D("20")},
		},
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)

	fixture.Equal(t, "0", env.Balance(t, fixture.COGS).Balance)
	fixture.Equal(t, "0", env.Balance(t, fixture.Receivable).Balance)
	entries, err := env.Ledger.ListJournalEntries(context.Background(), env.Company)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	current, err := env.Numbers.CurrentNumber(context.Background(), env.Company, "delivery_note", 2025)
	require.NoError(t, err)
	require.Zero(t, current)
}

func TestInvoiceAndCreditNote(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	inv, err := env.Docs.IssueInvoice(ctx, integration.InvoiceRequest{
		CompanyID:           env.Company,
		Number:              "INV-A1",
		Date:                fixture.Clock,
		ReceivableAccountID: env.Account(fixture.Receivable),
		Lines: []integration.AmountLine{
			{AccountID: env.Account(fixture.Revenue), Amount: fixture.D("150.255"), Description: "consulting"},
			{AccountID: env.Account(fixture.Revenue), Amount: fixture.D("49.745"), Description: "travel"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-A1", inv.Number)
	require.Len(t, inv.Entry.Lines, 3)
	fixture.Equal(t, "200", env.Balance(t, fixture.Receivable).Balance)

	_, err = env.Docs.IssueCreditNote(ctx, integration.CreditNoteRequest{
		CompanyID:           env.Company,
		Date:                fixture.Clock,
		ReceivableAccountID: env.Account(fixture.Receivable),
		Lines:               []integration.AmountLine{{AccountID: env.Account(fixture.Revenue), Amount: fixture.D("50")}},
	})
	require.NoError(t, err)
	fixture.Equal(t, "150", env.Balance(t, fixture.Receivable).Balance)
	fixture.Equal(t, "-150", env.Balance(t, fixture.Revenue).Balance)

	_, err = env.Docs.IssueInvoice(ctx, integration.InvoiceRequest{
		CompanyID:           env.Company,
		Number:              "INV-A1",
		Date:                fixture.Clock,
		ReceivableAccountID: env.Account(fixture.Receivable),
		Lines:               []integration.AmountLine{{AccountID: env.Account(fixture.Revenue), Amount: fixture.D("1")}},
	})
	require.ErrorIs(t, err, shared.ErrDuplicateOperation)
	fixture.Equal(t, "150", env.Balance(t, fixture.Receivable).Balance)
}

func TestVouchers(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	rv, err := env.Docs.ReceiptVoucher(ctx, integration.ReceiptVoucherRequest{
		CompanyID:         env.Company,
		Date:              fixture.Clock,
		CashBankAccountID: env.Account(fixture.Cash),
		CreditAccountID:   env.Account(fixture.Equity),
		Amount:            fixture.D("500"),
		Description:       "capital",
	})
	require.NoError(t, err)
	require.Equal(t, "RCV-2025-000001", rv.Number)
	require.Equal(t, accounting.SourceReceipt, rv.Entry.SourceType)

	pv, err := env.Docs.PaymentVoucher(ctx, integration.PaymentVoucherRequest{
		CompanyID:         env.Company,
		Date:              fixture.Clock,
		DebitAccountID:    env.Account(fixture.Expense),
		CashBankAccountID: env.Account(fixture.Cash),
		Amount:            fixture.D("120"),
	})
	require.NoError(t, err)
	require.Equal(t, "PAY-2025-000001", pv.Number)
	require.Equal(t, "JE-2025-000002", pv.Entry.Number)
	fixture.Equal(t, "380", env.Balance(t, fixture.Cash).Balance)

	_, err = env.Docs.PaymentVoucher(ctx, integration.PaymentVoucherRequest{
		CompanyID:         env.Company,
		Date:              fixture.Clock,
		DebitAccountID:    env.Account(fixture.Cash),
		CashBankAccountID: env.Account(fixture.Cash),
		Amount:            fixture.D("1"),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestRequestValidation(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
	}{
		{"grn without lines", func() error {
			_, err := env.Docs.ReceiveGoods(ctx, integration.ReceiveGoodsRequest{
				CompanyID: env.Company, Date: fixture.Clock, SupplierAccountID: env.Account(fixture.Payable),
			})
			return err
		}},
		{"grn zero quantity", func() error {
			_, err := env.Docs.ReceiveGoods(ctx, integration.ReceiveGoodsRequest{
				CompanyID: env.Company, Date: fixture.Clock, SupplierAccountID: env.Account(fixture.Payable),
				Lines: []integration.ReceiveLine{{ItemID: uuid.New(), WarehouseID: warehouse}},
			})
			return err
		}},
		{"voucher without company", func() error {
			_, err := env.Docs.PaymentVoucher(ctx, integration.PaymentVoucherRequest{
				Date: fixture.Clock, DebitAccountID: uuid.New(), CashBankAccountID: uuid.New(), Amount: fixture.D("1"),
			})
			return err
		}},
		{"invoice negative amount", func() error {
			_, err := env.Docs.IssueInvoice(ctx, integration.InvoiceRequest{
				CompanyID: env.Company, Date: fixture.Clock, ReceivableAccountID: env.Account(fixture.Receivable),
				Lines: []integration.AmountLine{{AccountID: env.Account(fixture.Revenue), Amount: fixture.D("-3")}},
			})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.call(), shared.ErrValidation)
		})
	}
}

func TestVoidDocumentEntryKeepsStock(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "BOLT")
	res := receive(t, env, item, "10", "2")

	_, err := env.Ledger.VoidJournal(context.Background(), accounting.VoidInput{
		CompanyID: env.Company, EntryID: res.Entry.ID, Reason: "supplier error",
	})
	require.NoError(t, err)

	fixture.Equal(t, "0", env.Balance(t, fixture.Stock).Balance)
	stored, err := env.Stock.GetItem(context.Background(), env.Company, item.ID)
	require.NoError(t, err)
	fixture.Equal(t, "10", stored.CurrentQty)
}
