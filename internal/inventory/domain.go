package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Stock source types recorded on ledger rows.
const (
	SourceGRN      = "GRN"
	SourceDelivery = "DO"
	SourceAdjust   = "ADJ"
	SourceTransfer = "TRF"
	SourceManual   = "MANUAL"
)

// Item is a stock item with its running aggregate. CurrentWAC is only
// re-based by receipts.
type Item struct {
	ID                 uuid.UUID
	CompanyID          uuid.UUID
	SKU                string
	Name               string
	Unit               string
	InventoryAccountID uuid.UUID
	COGSAccountID      uuid.UUID
	RevenueAccountID   uuid.UUID
	CurrentQty         decimal.Decimal
	TotalValue         decimal.Decimal
	CurrentWAC         decimal.Decimal
	IsActive           bool
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StockLedgerEntry is an immutable stock movement row. BalanceQty and
// BalanceValue record the item aggregate after the row.
type StockLedgerEntry struct {
	ID            uuid.UUID
	Seq           int64
	CompanyID     uuid.UUID
	ItemID        uuid.UUID
	WarehouseID   uuid.UUID
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	ValuationRate decimal.Decimal
	BalanceQty    decimal.Decimal
	BalanceValue  decimal.Decimal
	SourceType    string
	SourceID      string
	BatchNumber   string
	CustomerID    *uuid.UUID
	CreatedAt     time.Time
}

// IsReceipt reports whether the row moved stock in.
func (e StockLedgerEntry) IsReceipt() bool {
	return e.Quantity.IsPositive()
}

// Movement is one stock line of a document. Quantity is signed: positive
// receipts, negative issues. UnitCost is ignored on issues; UseCurrentRate
// values a receipt at the running WAC instead of UnitCost.
type Movement struct {
	ItemID         uuid.UUID
	WarehouseID    uuid.UUID
	Quantity       decimal.Decimal
	UnitCost       decimal.Decimal
	UseCurrentRate bool
	BatchNumber    string
	CustomerID     *uuid.UUID
}

// MovementInput is a standalone single-line stock movement.
type MovementInput struct {
	CompanyID   uuid.UUID
	ItemID      uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	SourceType  string
	SourceID    string
	BatchNumber string
	CustomerID  *uuid.UUID
	ActorID     uuid.UUID
}

// ItemInput registers a stock item.
type ItemInput struct {
	CompanyID          uuid.UUID
	SKU                string
	Name               string
	Unit               string
	InventoryAccountID uuid.UUID
	COGSAccountID      uuid.UUID
	RevenueAccountID   uuid.UUID
	ActorID            uuid.UUID
}

// AdjustmentLine changes one item's quantity. A null UnitCost values a
// positive adjustment at the current WAC.
type AdjustmentLine struct {
	ItemID   uuid.UUID
	Quantity decimal.Decimal
	UnitCost decimal.NullDecimal
}

// AdjustmentInput describes a stock count correction in one warehouse.
type AdjustmentInput struct {
	CompanyID   uuid.UUID
	WarehouseID uuid.UUID
	Number      string
	Date        time.Time
	Reason      string
	ActorID     uuid.UUID
	Lines       []AdjustmentLine
}

// TransferLine moves a quantity of one item.
type TransferLine struct {
	ItemID   uuid.UUID
	Quantity decimal.Decimal
}

// TransferInput moves stock between warehouses at the running WAC.
type TransferInput struct {
	CompanyID    uuid.UUID
	SrcWarehouse uuid.UUID
	DstWarehouse uuid.UUID
	Number       string
	Date         time.Time
	Note         string
	ActorID      uuid.UUID
	Lines        []TransferLine
}

var (
	// ErrNegativeStock triggered when movement would result negative qty.
	ErrNegativeStock = fmt.Errorf("%w: inventory: negative stock not allowed", shared.ErrValidation)
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be non zero", shared.ErrValidation)
	// ErrInvalidUnitCost indicates invalid cost value.
	ErrInvalidUnitCost = fmt.Errorf("%w: inventory: unit cost must be >= 0", shared.ErrValidation)
	// ErrItemNotFound indicates a missing or foreign item.
	ErrItemNotFound = fmt.Errorf("%w: inventory: item not found", shared.ErrNotFound)
	// ErrItemInactive indicates a movement on a deactivated item.
	ErrItemInactive = fmt.Errorf("%w: inventory: item inactive", shared.ErrValidation)
	// ErrDuplicateSKU indicates a SKU already used in the company.
	ErrDuplicateSKU = fmt.Errorf("%w: inventory: sku already exists", shared.ErrValidation)
)

// Validate ensures the movement request is well formed.
func (in MovementInput) Validate() error {
	if in.CompanyID == uuid.Nil || in.ItemID == uuid.Nil || in.WarehouseID == uuid.Nil {
		return fmt.Errorf("%w: inventory: company, item and warehouse required", shared.ErrValidation)
	}
	return validateMovement(in.Quantity, in.UnitCost)
}

// Validate ensures the item request is well formed.
func (in ItemInput) Validate() error {
	if in.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: inventory: company required", shared.ErrValidation)
	}
	if strings.TrimSpace(in.SKU) == "" || strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: inventory: sku and name required", shared.ErrValidation)
	}
	if in.InventoryAccountID == uuid.Nil || in.COGSAccountID == uuid.Nil {
		return fmt.Errorf("%w: inventory: inventory and cogs accounts required", shared.ErrValidation)
	}
	return nil
}

// Validate ensures the adjustment request is well formed.
func (in AdjustmentInput) Validate() error {
	if in.CompanyID == uuid.Nil || in.WarehouseID == uuid.Nil {
		return fmt.Errorf("%w: inventory: company and warehouse required", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: inventory: adjustment requires lines", shared.ErrValidation)
	}
	for _, l := range in.Lines {
		if l.ItemID == uuid.Nil {
			return fmt.Errorf("%w: inventory: line item required", shared.ErrValidation)
		}
		cost := decimal.Zero
		if l.UnitCost.Valid {
			cost = l.UnitCost.Decimal
		}
		if err := validateMovement(l.Quantity, cost); err != nil {
			return err
		}
	}
	return nil
}

// Validate ensures the transfer request is well formed.
func (in TransferInput) Validate() error {
	if in.CompanyID == uuid.Nil || in.SrcWarehouse == uuid.Nil || in.DstWarehouse == uuid.Nil {
		return fmt.Errorf("%w: inventory: company and warehouses required", shared.ErrValidation)
	}
	if in.SrcWarehouse == in.DstWarehouse {
		return fmt.Errorf("%w: inventory: source and destination warehouse must differ", shared.ErrValidation)
	}
	if len(in.Lines) == 0 {
		return fmt.Errorf("%w: inventory: transfer requires lines", shared.ErrValidation)
	}
	for _, l := range in.Lines {
		if l.ItemID == uuid.Nil {
			return fmt.Errorf("%w: inventory: line item required", shared.ErrValidation)
		}
		if !l.Quantity.IsPositive() {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func validateMovement(qty, cost decimal.Decimal) error {
	if shared.Round(qty).IsZero() {
		return ErrInvalidQuantity
	}
	if qty.IsPositive() && cost.IsNegative() {
		return ErrInvalidUnitCost
	}
	return nil
}
