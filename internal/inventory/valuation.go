package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ItemReader loads item snapshots in the read phase.
type ItemReader interface {
	GetItems(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]Item, error)
}

// ItemWriter persists folded item states and appends ledger rows. SaveItem
// fails with shared.ErrConcurrency when the stored version differs.
type ItemWriter interface {
	SaveItem(ctx context.Context, item Item) error
	InsertStockEntries(ctx context.Context, entries []StockLedgerEntry) error
}

// Snapshot holds the starting state of every item a document touches.
type Snapshot map[uuid.UUID]Item

// Source tags the rows produced by one document.
type Source struct {
	Type string
	ID   string
}

// LineResult is the effect of one movement at the point it was folded.
type LineResult struct {
	Movement      Movement
	UnitCost      decimal.Decimal
	ValuationRate decimal.Decimal
	// Value is the signed change of the item's total value.
	Value decimal.Decimal
}

// Folded carries the final item states and one ledger row per movement.
type Folded struct {
	CompanyID uuid.UUID
	Items     []Item
	Lines     []LineResult
	Entries   []StockLedgerEntry
}

// Item returns the final folded state of id.
func (f *Folded) Item(id uuid.UUID) (Item, bool) {
	for _, it := range f.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Valuation is the weighted average cost engine.
type Valuation struct {
	allowNegative bool
	now           func() time.Time
}

// NewValuation builds the engine for the given policy.
func NewValuation(cfg ServiceConfig) *Valuation {
	return &Valuation{allowNegative: cfg.AllowNegativeStock, now: time.Now}
}

// AllowsNegativeStock reports the configured stock-out policy.
func (v *Valuation) AllowsNegativeStock() bool {
	return v.allowNegative
}

// Load reads every distinct item referenced by movements exactly once.
func (v *Valuation) Load(ctx context.Context, tx ItemReader, companyID uuid.UUID, movements []Movement) (Snapshot, error) {
	ids := make([]uuid.UUID, 0, len(movements))
	seen := make(map[uuid.UUID]struct{}, len(movements))
	for _, m := range movements {
		if _, ok := seen[m.ItemID]; ok {
			continue
		}
		seen[m.ItemID] = struct{}{}
		ids = append(ids, m.ItemID)
	}
	items, err := tx.GetItems(ctx, companyID, ids)
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(ids))
	for _, id := range ids {
		item, ok := items[id]
		if !ok || item.CompanyID != companyID {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		if !item.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrItemInactive, item.SKU)
		}
		snap[id] = item
	}
	return snap, nil
}

// Fold applies movements in order to a running copy of the snapshot. Each
// row carries the rate in effect at its own line. Nothing is written.
func (v *Valuation) Fold(companyID uuid.UUID, snap Snapshot, movements []Movement, src Source) (*Folded, error) {
	running := make(map[uuid.UUID]Item, len(snap))
	order := make([]uuid.UUID, 0, len(snap))
	now := v.now().UTC()
	folded := &Folded{CompanyID: companyID}

	for idx, m := range movements {
		item, ok := running[m.ItemID]
		if !ok {
			item, ok = snap[m.ItemID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrItemNotFound, m.ItemID)
			}
			order = append(order, m.ItemID)
		}
		qty := shared.Round(m.Quantity)
		if qty.IsZero() {
			return nil, fmt.Errorf("%w (line %d)", ErrInvalidQuantity, idx+1)
		}
		line := LineResult{Movement: m}
		newQty := item.CurrentQty.Add(qty)
		if qty.IsPositive() {
			cost := shared.Round(m.UnitCost)
			if m.UseCurrentRate {
				cost = item.CurrentWAC
			}
			if cost.IsNegative() {
				return nil, fmt.Errorf("%w (line %d)", ErrInvalidUnitCost, idx+1)
			}
			line.UnitCost = cost
			line.Value = shared.Round(qty.Mul(cost))
			item.TotalValue = item.TotalValue.Add(line.Value)
			if newQty.IsZero() {
				item.CurrentWAC = cost
			} else {
				item.CurrentWAC = shared.Round(item.TotalValue.Div(newQty))
			}
			line.ValuationRate = item.CurrentWAC
		} else {
			if !v.allowNegative && newQty.IsNegative() {
				return nil, fmt.Errorf("%w: %s on hand %s, issuing %s", ErrNegativeStock, item.SKU, item.CurrentQty, qty.Neg())
			}
			rate := item.CurrentWAC
			line.UnitCost = rate
			line.ValuationRate = rate
			line.Value = shared.Round(qty.Mul(rate))
			item.TotalValue = item.TotalValue.Add(line.Value)
		}
		item.CurrentQty = newQty
		item.UpdatedAt = now
		running[m.ItemID] = item

		folded.Lines = append(folded.Lines, line)
		folded.Entries = append(folded.Entries, StockLedgerEntry{
			ID:            uuid.New(),
			CompanyID:     companyID,
			ItemID:        m.ItemID,
			WarehouseID:   m.WarehouseID,
			Quantity:      qty,
			UnitCost:      line.UnitCost,
			ValuationRate: line.ValuationRate,
			BalanceQty:    item.CurrentQty,
			BalanceValue:  item.TotalValue,
			SourceType:    src.Type,
			SourceID:      src.ID,
			BatchNumber:   m.BatchNumber,
			CustomerID:    m.CustomerID,
			CreatedAt:     now,
		})
	}
	for _, id := range order {
		folded.Items = append(folded.Items, running[id])
	}
	return folded, nil
}

// Commit writes each item's final state once and appends the ledger rows.
func (v *Valuation) Commit(ctx context.Context, tx ItemWriter, f *Folded) error {
	if f == nil {
		return nil
	}
	for _, item := range f.Items {
		if err := tx.SaveItem(ctx, item); err != nil {
			return err
		}
	}
	return tx.InsertStockEntries(ctx, f.Entries)
}
