package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/store/memory"
)

type discardAudit struct{}

func (discardAudit) Record(context.Context, shared.AuditLog) error { return nil }

func TestNewServicesSharesOneStore(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{LedgerPeriodGate: "all"}
	store := memory.New()
	svc := NewServices(cfg, store, discardAudit{}, nil, nil)
	company := uuid.New()

	open := func(code string, typ accounting.AccountType) accounting.Account {
		acc, err := svc.Ledger.OpenAccount(ctx, accounting.AccountInput{CompanyID: company, Code: code, Name: code, Type: typ})
		require.NoError(t, err)
		return acc
	}
	stock := open("1200", accounting.AccountTypeAsset)
	payable := open("2000", accounting.AccountTypeLiability)
	cogs := open("5000", accounting.AccountTypeExpense)

	item, err := svc.Stock.RegisterItem(ctx, inventory.ItemInput{
		CompanyID: company, SKU: "BOLT", Name: "Bolt", InventoryAccountID: stock.ID, COGSAccountID: cogs.ID,
	})
	require.NoError(t, err)

	res, err := svc.Documents.ReceiveGoods(ctx, integration.ReceiveGoodsRequest{
		CompanyID:         company,
		Date:              time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		SupplierAccountID: payable.ID,
		Lines: []integration.ReceiveLine{
			{ItemID: item.ID, WarehouseID: uuid.New(), Quantity: decimal.NewFromInt(4), UnitCost: decimal.NewFromInt(25)},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "GRN-2025-000001", res.Number)

	got, err := svc.Ledger.GetAccount(ctx, company, stock.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(100)))

	companies, err := svc.Companies(ctx)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{company}, companies)

	report, err := svc.Ledger.CheckIntegrity(ctx, company)
	require.NoError(t, err)
	require.True(t, report.OK())
}
