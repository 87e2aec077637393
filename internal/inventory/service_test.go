package inventory_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

var (
	mainWH = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	sideWH = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func move(t *testing.T, env *fixture.Env, item inventory.Item, qty, cost string) inventory.MovementResult {
	t.Helper()
	res, err := env.Stock.ApplyMovement(context.Background(), inventory.MovementInput{
		CompanyID:   env.Company,
		ItemID:      item.ID,
		WarehouseID: mainWH,
		Quantity:    fixture.D(qty),
		UnitCost:    fixture.D(cost),
	})
	require.NoError(t, err)
	return res
}

func requireItem(t *testing.T, item inventory.Item, qty, value, wac string) {
	t.Helper()
	fixture.Equal(t, qty, item.CurrentQty, "qty")
	fixture.Equal(t, value, item.TotalValue, "value")
	fixture.Equal(t, wac, item.CurrentWAC, "wac")
}

func TestReceiptsRecomputeWAC(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "BOLT")

	first := move(t, env, item, "100", "10")
	requireItem(t, first.Item, "100", "1000", "10")
	fixture.Equal(t, "10", first.Entry.ValuationRate)

	second := move(t, env, item, "50", "16")
	requireItem(t, second.Item, "150", "1800", "12")
	fixture.Equal(t, "16", second.Entry.UnitCost)
	fixture.Equal(t, "12", second.Entry.ValuationRate)
	fixture.Equal(t, "1800", second.Entry.BalanceValue)
}

func TestIssueKeepsWAC(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "BOLT")
	move(t, env, item, "100", "10")
	move(t, env, item, "50", "16")

	issued := move(t, env, item, "-30", "0")
	requireItem(t, issued.Item, "120", "1440", "12")
	fixture.Equal(t, "12", issued.Entry.ValuationRate)
	fixture.Equal(t, "-30", issued.Entry.Quantity)

	rows, err := env.Stock.StockLedger(context.Background(), env.Company, item.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Less(t, rows[0].Seq, rows[2].Seq)
}

func TestNegativeStockPolicy(t *testing.T) {
	t.Run("blocked", func(t *testing.T) {
		env := fixture.New(t, fixture.Options{})
		item := env.Item(t, "NUT")
		move(t, env, item, "5", "2")

		_, err := env.Stock.ApplyMovement(context.Background(), inventory.MovementInput{
			CompanyID: env.Company, ItemID: item.ID, WarehouseID: mainWH, Quantity: fixture.D("-6"),
		})
		require.ErrorIs(t, err, inventory.ErrNegativeStock)

		stored, err := env.Stock.GetItem(context.Background(), env.Company, item.ID)
		require.NoError(t, err)
		requireItem(t, stored, "5", "10", "2")
	})
	t.Run("allowed", func(t *testing.T) {
		env := fixture.New(t, fixture.Options{AllowNegative: true})
		item := env.Item(t, "NUT")
		move(t, env, item, "5", "2")

		res := move(t, env, item, "-6", "0")
		requireItem(t, res.Item, "-1", "-2", "2")
	})
}

func TestReceiptIntoZeroQuantityUsesCost(t *testing.T) {
	env := fixture.New(t, fixture.Options{AllowNegative: true})
	item := env.Item(t, "WASHER")

	move(t, env, item, "-4", "0")
	res := move(t, env, item, "4", "3")
	requireItem(t, res.Item, "0", "12", "3")
}

func TestMovementValidation(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "PIN")
	ctx := context.Background()

	_, err := env.Stock.ApplyMovement(ctx, inventory.MovementInput{CompanyID: env.Company, ItemID: item.ID, WarehouseID: mainWH, Quantity: decimal.Zero})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = env.Stock.ApplyMovement(ctx, inventory.MovementInput{CompanyID: env.Company, ItemID: item.ID, WarehouseID: mainWH, Quantity: fixture.D("1"), UnitCost: fixture.D("-1")})
	require.ErrorIs(t, err, inventory.ErrInvalidUnitCost)

	_, err = env.Stock.ApplyMovement(ctx, inventory.MovementInput{CompanyID: env.Company, ItemID: uuid.New(), WarehouseID: mainWH, Quantity: fixture.D("1")})
	require.ErrorIs(t, err, inventory.ErrItemNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMovementIdempotentOnSource(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "PIN")
	in := inventory.MovementInput{
		CompanyID:   env.Company,
		ItemID:      item.ID,
		WarehouseID: mainWH,
		Quantity:    fixture.D("10"),
		UnitCost:    fixture.D("1.5"),
		SourceType:  "IMPORT",
		SourceID:    "row-9",
	}
	_, err := env.Stock.ApplyMovement(context.Background(), in)
	require.NoError(t, err)
	_, err = env.Stock.ApplyMovement(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrDuplicateOperation)

	stored, err := env.Stock.GetItem(context.Background(), env.Company, item.ID)
	require.NoError(t, err)
	requireItem(t, stored, "10", "15", "1.5")
}

func TestRegisterItemDuplicateSKU(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	env.Item(t, "CAP")

	_, err := env.Stock.RegisterItem(context.Background(), inventory.ItemInput{
		CompanyID:          env.Company,
		SKU:                "CAP",
		Name:               "Cap again",
		InventoryAccountID: env.Account(fixture.Stock),
		COGSAccountID:      env.Account(fixture.COGS),
	})
	require.ErrorIs(t, err, inventory.ErrDuplicateSKU)
}

func TestAdjustFoldsLinesInOrder(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "GEAR")

	res, err := env.Stock.Adjust(context.Background(), inventory.AdjustmentInput{
		CompanyID:   env.Company,
		WarehouseID: mainWH,
		Date:        fixture.Clock,
		Reason:      "count",
		Lines: []inventory.AdjustmentLine{
			{ItemID: item.ID, Quantity: fixture.D("10"), UnitCost: decimal.NewNullDecimal(fixture.D("5"))},
			{ItemID: item.ID, Quantity: fixture.D("-4")},
			{ItemID: item.ID, Quantity: fixture.D("2")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "ADJ-2025-000001", res.Number)
	require.Len(t, res.Items, 1)
	requireItem(t, res.Items[0], "8", "40", "5")
	require.Len(t, res.Entries, 3)
	fixture.Equal(t, "10", res.Entries[0].BalanceQty)
	fixture.Equal(t, "6", res.Entries[1].BalanceQty)
	fixture.Equal(t, "5", res.Entries[2].UnitCost)

	stored, err := env.Stock.GetItem(context.Background(), env.Company, item.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, stored.Version)
}

func TestAdjustRejectsWholeDocument(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	a := env.Item(t, "A")
	b := env.Item(t, "B")

	_, err := env.Stock.Adjust(context.Background(), inventory.AdjustmentInput{
		CompanyID:   env.Company,
		WarehouseID: mainWH,
		Lines: []inventory.AdjustmentLine{
			{ItemID: a.ID, Quantity: fixture.D("3"), UnitCost: decimal.NewNullDecimal(fixture.D("1"))},
			{ItemID: b.ID, Quantity: fixture.D("-1")},
		},
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)

	stored, err := env.Stock.GetItem(context.Background(), env.Company, a.ID)
	require.NoError(t, err)
	requireItem(t, stored, "0", "0", "0")
	rows, err := env.Stock.StockLedger(context.Background(), env.Company, a.ID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestTransferKeepsAggregate(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "ROD")
	move(t, env, item, "3", "3.3333333")

	res, err := env.Stock.Transfer(context.Background(), inventory.TransferInput{
		CompanyID:    env.Company,
		SrcWarehouse: mainWH,
		DstWarehouse: sideWH,
		Date:         fixture.Clock,
		Lines:        []inventory.TransferLine{{ItemID: item.ID, Quantity: fixture.D("1")}},
	})
	require.NoError(t, err)
	require.Equal(t, "TRF-2025-000001", res.Number)
	requireItem(t, res.Items[0], "3", "9.9999", "3.3333")
	require.Len(t, res.Entries, 2)
	require.Equal(t, mainWH, res.Entries[0].WarehouseID)
	require.Equal(t, sideWH, res.Entries[1].WarehouseID)
	fixture.Equal(t, "3.3333", res.Entries[1].UnitCost)
}

func TestTransferValidation(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "ROD")

	_, err := env.Stock.Transfer(context.Background(), inventory.TransferInput{
		CompanyID:    env.Company,
		SrcWarehouse: mainWH,
		DstWarehouse: mainWH,
		Lines:        []inventory.TransferLine{{ItemID: item.ID, Quantity: fixture.D("1")}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = env.Stock.Transfer(context.Background(), inventory.TransferInput{
		CompanyID:    env.Company,
		SrcWarehouse: mainWH,
		DstWarehouse: sideWH,
		Lines:        []inventory.TransferLine{{ItemID: item.ID, Quantity: fixture.D("1")}},
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
}

func TestDocumentNumberIdempotent(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "GEAR")
	in := inventory.AdjustmentInput{
		CompanyID:   env.Company,
		WarehouseID: mainWH,
		Number:      "COUNT-1",
		Lines:       []inventory.AdjustmentLine{{ItemID: item.ID, Quantity: fixture.D("1"), UnitCost: decimal.NewNullDecimal(fixture.D("1"))}},
	}
	_, err := env.Stock.Adjust(context.Background(), in)
	require.NoError(t, err)
	_, err = env.Stock.Adjust(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrDuplicateOperation)
}
