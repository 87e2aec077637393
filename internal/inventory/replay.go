package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ReplayState is an item aggregate rebuilt from ledger rows.
type ReplayState struct {
	Qty   decimal.Decimal
	Value decimal.Decimal
	WAC   decimal.Decimal
}

// Replay rebuilds an aggregate from rows in append order using the rates the
// rows recorded.
func Replay(rows []StockLedgerEntry) ReplayState {
	var st ReplayState
	for _, row := range rows {
		st.Qty = st.Qty.Add(row.Quantity)
		if row.IsReceipt() {
			st.Value = st.Value.Add(shared.Round(row.Quantity.Mul(row.UnitCost)))
			if st.Qty.IsZero() {
				st.WAC = row.UnitCost
			} else {
				st.WAC = shared.Round(st.Value.Div(st.Qty))
			}
			continue
		}
		st.Value = st.Value.Add(shared.Round(row.Quantity.Mul(row.ValuationRate)))
	}
	return st
}

// Drift is an item whose stored aggregate disagrees with its ledger.
type Drift struct {
	ItemID   uuid.UUID
	SKU      string
	Stored   ReplayState
	Replayed ReplayState
	Repaired bool
}

// RevaluationReport summarises a revaluation run.
type RevaluationReport struct {
	CompanyID uuid.UUID
	Items     int
	Drifts    []Drift
}

// Revaluate replays every item's stock ledger and compares the result with
// the stored aggregate. With repair set, drifted items are rewritten from the
// replay in the same unit of work.
func (s *Service) Revaluate(ctx context.Context, companyID uuid.UUID, repair bool) (RevaluationReport, error) {
	if companyID == uuid.Nil {
		return RevaluationReport{}, fmt.Errorf("%w: inventory: company required", shared.ErrValidation)
	}
	var report RevaluationReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		report = RevaluationReport{CompanyID: companyID}
		items, err := tx.ListItems(ctx, companyID)
		if err != nil {
			return err
		}
		rows, err := tx.ListStockEntries(ctx, companyID, uuid.Nil)
		if err != nil {
			return err
		}
		byItem := make(map[uuid.UUID][]StockLedgerEntry, len(items))
		for _, row := range rows {
			byItem[row.ItemID] = append(byItem[row.ItemID], row)
		}
		report.Items = len(items)
		var fixes []Item
		for _, item := range items {
			replayed := Replay(byItem[item.ID])
			stored := ReplayState{Qty: item.CurrentQty, Value: item.TotalValue, WAC: item.CurrentWAC}
			if stored.Qty.Equal(replayed.Qty) && stored.Value.Equal(replayed.Value) && stored.WAC.Equal(replayed.WAC) {
				continue
			}
			report.Drifts = append(report.Drifts, Drift{ItemID: item.ID, SKU: item.SKU, Stored: stored, Replayed: replayed, Repaired: repair})
			if repair {
				item.CurrentQty = replayed.Qty
				item.TotalValue = replayed.Value
				item.CurrentWAC = replayed.WAC
				item.UpdatedAt = s.now().UTC()
				fixes = append(fixes, item)
			}
		}
		for _, item := range fixes {
			if err := tx.SaveItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RevaluationReport{}, err
	}
	if repair && len(report.Drifts) > 0 {
		s.record(ctx, companyID, uuid.Nil, "inventory.revaluate", companyID.String(), map[string]any{"repaired": len(report.Drifts)})
	}
	return report, nil
}
