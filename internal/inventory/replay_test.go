package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/testing/fixture"
)

func TestReplayMatchesFold(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	item := env.Item(t, "BOLT")
	move(t, env, item, "100", "10")
	move(t, env, item, "50", "16")
	move(t, env, item, "-30", "0")
	move(t, env, item, "7", "13.37")

	rows, err := env.Stock.StockLedger(context.Background(), env.Company, item.ID)
	require.NoError(t, err)
	stored, err := env.Stock.GetItem(context.Background(), env.Company, item.ID)
	require.NoError(t, err)

	st := inventory.Replay(rows)
	require.True(t, st.Qty.Equal(stored.CurrentQty))
	require.True(t, st.Value.Equal(stored.TotalValue))
	require.True(t, st.WAC.Equal(stored.CurrentWAC))
}

func TestRevaluateDetectsAndRepairsDrift(t *testing.T) {
	env := fixture.New(t, fixture.Options{})
	ctx := context.Background()
	item := env.Item(t, "BOLT")
	env.Item(t, "IDLE")
	move(t, env, item, "10", "4")

	report, err := env.Stock.Revaluate(ctx, env.Company, false)
	require.NoError(t, err)
	require.Equal(t, 2, report.Items)
	require.Empty(t, report.Drifts)

	err = env.Store.Inventory().WithTx(ctx, func(ctx context.Context, tx inventory.TxRepository) error {
		it, err := tx.GetItem(ctx, env.Company, item.ID)
		if err != nil {
			return err
		}
		it.TotalValue = fixture.D("41")
		return tx.SaveItem(ctx, it)
	})
	require.NoError(t, err)

	report, err = env.Stock.Revaluate(ctx, env.Company, false)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	require.Equal(t, "BOLT", report.Drifts[0].SKU)
	require.False(t, report.Drifts[0].Repaired)
	fixture.Equal(t, "40", report.Drifts[0].Replayed.Value)

	report, err = env.Stock.Revaluate(ctx, env.Company, true)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	require.True(t, report.Drifts[0].Repaired)

	stored, err := env.Stock.GetItem(ctx, env.Company, item.ID)
	require.NoError(t, err)
	fixture.Equal(t, "40", stored.TotalValue)
	require.Contains(t, env.Audit.Actions(), "inventory.revaluate")
}
