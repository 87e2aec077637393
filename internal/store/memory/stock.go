package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// GetItems returns the company's items among ids.
func (tx *Tx) GetItems(_ context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]inventory.Item, error) {
	if err := tx.read(); err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]inventory.Item, len(ids))
	tx.s.lockedRead(func() {
		for _, id := range ids {
			if it, ok := tx.s.items[id]; ok && it.CompanyID == companyID {
				out[id] = it
			}
		}
	})
	return out, nil
}

// GetItem returns one item of the company.
func (tx *Tx) GetItem(_ context.Context, companyID, id uuid.UUID) (inventory.Item, error) {
	if err := tx.read(); err != nil {
		return inventory.Item{}, err
	}
	var (
		it inventory.Item
		ok bool
	)
	tx.s.lockedRead(func() {
		it, ok = tx.s.items[id]
	})
	if !ok || it.CompanyID != companyID {
		return inventory.Item{}, fmt.Errorf("%w: %s", inventory.ErrItemNotFound, id)
	}
	return it, nil
}

// SKUExists reports whether sku is taken in the company.
func (tx *Tx) SKUExists(_ context.Context, companyID uuid.UUID, sku string) (bool, error) {
	if err := tx.read(); err != nil {
		return false, err
	}
	var ok bool
	tx.s.lockedRead(func() {
		_, ok = tx.s.itemSKUs[companyKey{companyID, sku}]
	})
	return ok, nil
}

// ListItems returns the company's items ordered by SKU.
func (tx *Tx) ListItems(_ context.Context, companyID uuid.UUID) ([]inventory.Item, error) {
	if err := tx.read(); err != nil {
		return nil, err
	}
	var out []inventory.Item
	tx.s.lockedRead(func() {
		for _, it := range tx.s.items {
			if it.CompanyID == companyID {
				out = append(out, it)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

// ListStockEntries returns rows in append order; a nil itemID lists all items.
func (tx *Tx) ListStockEntries(_ context.Context, companyID uuid.UUID, itemID uuid.UUID) ([]inventory.StockLedgerEntry, error) {
	if err := tx.read(); err != nil {
		return nil, err
	}
	var out []inventory.StockLedgerEntry
	tx.s.lockedRead(func() {
		for _, row := range tx.s.stock {
			if row.CompanyID != companyID {
				continue
			}
			if itemID != uuid.Nil && row.ItemID != itemID {
				continue
			}
			out = append(out, row)
		}
	})
	return out, nil
}

// InsertItem buffers a new item.
func (tx *Tx) InsertItem(_ context.Context, item inventory.Item) error {
	item.Version = 1
	key := companyKey{item.CompanyID, item.SKU}
	tx.write(func() error {
		if _, ok := tx.s.itemSKUs[key]; ok {
			return fmt.Errorf("%w: %s", inventory.ErrDuplicateSKU, item.SKU)
		}
		return nil
	}, func() {
		tx.s.items[item.ID] = item
		tx.s.itemSKUs[key] = item.ID
	})
	return nil
}

// SaveItem buffers an item update guarded by its version.
func (tx *Tx) SaveItem(_ context.Context, item inventory.Item) error {
	tx.write(func() error {
		current, ok := tx.s.items[item.ID]
		if !ok || current.CompanyID != item.CompanyID {
			return fmt.Errorf("%w: %s", inventory.ErrItemNotFound, item.ID)
		}
		if current.Version != item.Version {
			return fmt.Errorf("%w: item %s", shared.ErrConcurrency, item.SKU)
		}
		return nil
	}, func() {
		item.Version++
		tx.s.items[item.ID] = item
	})
	return nil
}

// InsertStockEntries buffers appended ledger rows.
func (tx *Tx) InsertStockEntries(_ context.Context, entries []inventory.StockLedgerEntry) error {
	rows := append([]inventory.StockLedgerEntry(nil), entries...)
	tx.write(nil, func() {
		for _, row := range rows {
			tx.s.stockSeq++
			row.Seq = tx.s.stockSeq
			tx.s.stock = append(tx.s.stock, row)
		}
	})
	return nil
}
