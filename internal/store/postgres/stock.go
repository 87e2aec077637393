package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

const itemColumns = `id, company_id, sku, name, unit, inventory_account_id, cogs_account_id, revenue_account_id,
	current_qty, total_value, current_wac, is_active, version, created_at, updated_at`

func scanItem(row pgx.Row) (inventory.Item, error) {
	var (
		it      inventory.Item
		revenue *uuid.UUID
	)
	err := row.Scan(&it.ID, &it.CompanyID, &it.SKU, &it.Name, &it.Unit, &it.InventoryAccountID, &it.COGSAccountID, &revenue,
		&it.CurrentQty, &it.TotalValue, &it.CurrentWAC, &it.IsActive, &it.Version, &it.CreatedAt, &it.UpdatedAt)
	it.RevenueAccountID = fromNull(revenue)
	return it, err
}

func collectItems(rows pgx.Rows) ([]inventory.Item, error) {
	defer rows.Close()
	var items []inventory.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItems returns the company's items among ids.
func (t *Tx) GetItems(ctx context.Context, companyID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]inventory.Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE company_id = $1 AND id = ANY($2::uuid[])`, companyID, ids)
	if err != nil {
		return nil, err
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]inventory.Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// GetItem returns one item of the company.
func (t *Tx) GetItem(ctx context.Context, companyID, id uuid.UUID) (inventory.Item, error) {
	it, err := scanItem(t.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		return inventory.Item{}, notFound(err, inventory.ErrItemNotFound, id)
	}
	return it, nil
}

// SKUExists reports whether sku is taken in the company.
func (t *Tx) SKUExists(ctx context.Context, companyID uuid.UUID, sku string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE company_id = $1 AND sku = $2)`, companyID, sku).Scan(&exists)
	return exists, err
}

// ListItems returns the company's items ordered by SKU.
func (t *Tx) ListItems(ctx context.Context, companyID uuid.UUID) ([]inventory.Item, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE company_id = $1 ORDER BY sku`, companyID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// ListStockEntries returns rows in append order; a nil itemID lists all items.
func (t *Tx) ListStockEntries(ctx context.Context, companyID uuid.UUID, itemID uuid.UUID) ([]inventory.StockLedgerEntry, error) {
	rows, err := t.tx.Query(ctx, `SELECT seq, id, company_id, item_id, warehouse_id, quantity, unit_cost, valuation_rate,
	balance_qty, balance_value, source_type, source_id, batch_number, customer_id, created_at
FROM stock_ledger
WHERE company_id = $1 AND ($2::uuid IS NULL OR item_id = $2)
ORDER BY seq`, companyID, nullUUID(itemID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.StockLedgerEntry
	for rows.Next() {
		var e inventory.StockLedgerEntry
		if err := rows.Scan(&e.Seq, &e.ID, &e.CompanyID, &e.ItemID, &e.WarehouseID, &e.Quantity, &e.UnitCost, &e.ValuationRate,
			&e.BalanceQty, &e.BalanceValue, &e.SourceType, &e.SourceID, &e.BatchNumber, &e.CustomerID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertItem stores a new item at version 1.
func (t *Tx) InsertItem(ctx context.Context, it inventory.Item) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO items (`+itemColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)`,
		it.ID, it.CompanyID, it.SKU, it.Name, it.Unit, it.InventoryAccountID, it.COGSAccountID, nullUUID(it.RevenueAccountID),
		it.CurrentQty, it.TotalValue, it.CurrentWAC, it.IsActive, it.CreatedAt, it.UpdatedAt)
	if db.IsUniqueViolation(err, "items_company_sku_key") {
		return fmt.Errorf("%w: %s", inventory.ErrDuplicateSKU, it.SKU)
	}
	return err
}

// SaveItem writes the aggregate when the stored version still matches.
func (t *Tx) SaveItem(ctx context.Context, it inventory.Item) error {
	tag, err := t.tx.Exec(ctx, `UPDATE items
SET current_qty = $3, total_value = $4, current_wac = $5, is_active = $6, updated_at = $7, version = version + 1
WHERE id = $1 AND company_id = $2 AND version = $8`,
		it.ID, it.CompanyID, it.CurrentQty, it.TotalValue, it.CurrentWAC, it.IsActive, it.UpdatedAt, it.Version)
	return cas(tag, err, "item "+it.SKU)
}

// InsertStockEntries appends ledger rows; seq is assigned by the database.
func (t *Tx) InsertStockEntries(ctx context.Context, entries []inventory.StockLedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO stock_ledger (id, company_id, item_id, warehouse_id, quantity, unit_cost, valuation_rate,
	balance_qty, balance_value, source_type, source_id, batch_number, customer_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			e.ID, e.CompanyID, e.ItemID, e.WarehouseID, e.Quantity, e.UnitCost, e.ValuationRate,
			e.BalanceQty, e.BalanceValue, e.SourceType, e.SourceID, e.BatchNumber, e.CustomerID, e.CreatedAt)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}
