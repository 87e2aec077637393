package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes the stock reads and writes of a unit of work.
type TxRepository interface {
	shared.IdempotencyTx
	numbering.TxRepository
	ItemReader
	ItemWriter
	GetItem(ctx context.Context, companyID, id uuid.UUID) (Item, error)
	SKUExists(ctx context.Context, companyID uuid.UUID, sku string) (bool, error)
	InsertItem(ctx context.Context, item Item) error
	ListItems(ctx context.Context, companyID uuid.UUID) ([]Item, error)
	// ListStockEntries returns rows in append order; a nil item lists every item.
	ListStockEntries(ctx context.Context, companyID uuid.UUID, itemID uuid.UUID) ([]StockLedgerEntry, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// Service coordinates inventory operations.
type Service struct {
	repo      RepositoryPort
	audit     shared.AuditPort
	valuation *Valuation
	idem      *shared.IdempotencyGuard
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, cfg ServiceConfig) *Service {
	return &Service{
		repo:      repo,
		audit:     audit,
		valuation: NewValuation(cfg),
		idem:      shared.NewIdempotencyGuard(nil),
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.valuation.now = now
		s.idem.WithNow(now)
	}
}

// Valuation exposes the WAC engine for documents that post stock and ledger together.
func (s *Service) Valuation() *Valuation {
	return s.valuation
}

// MovementResult is the outcome of a single movement.
type MovementResult struct {
	Item  Item
	Entry StockLedgerEntry
}

// ApplyMovement applies one signed stock movement in its own unit of work.
// A non-blank SourceID keys idempotency on (SourceType, SourceID).
func (s *Service) ApplyMovement(ctx context.Context, input MovementInput) (MovementResult, error) {
	if err := input.Validate(); err != nil {
		return MovementResult{}, err
	}
	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = SourceManual
	}
	key := ""
	if input.SourceID != "" {
		key = shared.IdempotencyKey(sourceType, input.SourceID)
	}
	movements := []Movement{{
		ItemID:      input.ItemID,
		WarehouseID: input.WarehouseID,
		Quantity:    input.Quantity,
		UnitCost:    input.UnitCost,
		BatchNumber: input.BatchNumber,
		CustomerID:  input.CustomerID,
	}}
	var result MovementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.idem.Check(ctx, tx, input.CompanyID, key); err != nil {
			return err
		}
		snap, err := s.valuation.Load(ctx, tx, input.CompanyID, movements)
		if err != nil {
			return err
		}
		folded, err := s.valuation.Fold(input.CompanyID, snap, movements, Source{Type: sourceType, ID: input.SourceID})
		if err != nil {
			return err
		}
		if err := s.idem.Reserve(ctx, tx, input.CompanyID, key, "inventory"); err != nil {
			return err
		}
		if err := s.valuation.Commit(ctx, tx, folded); err != nil {
			return err
		}
		result = MovementResult{Item: folded.Items[0], Entry: folded.Entries[0]}
		return nil
	})
	if err != nil {
		return MovementResult{}, err
	}
	s.record(ctx, input.CompanyID, input.ActorID, "inventory.movement", input.ItemID.String(), map[string]any{
		"warehouse_id": input.WarehouseID.String(),
		"qty":          input.Quantity.String(),
		"rate":         result.Entry.ValuationRate.String(),
		"source":       sourceType + ":" + input.SourceID,
	})
	return result, nil
}

// RegisterItem adds a stock item with an empty aggregate.
func (s *Service) RegisterItem(ctx context.Context, input ItemInput) (Item, error) {
	if err := input.Validate(); err != nil {
		return Item{}, err
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sku := strings.TrimSpace(input.SKU)
		exists, err := tx.SKUExists(ctx, input.CompanyID, sku)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateSKU, sku)
		}
		now := s.now().UTC()
		item = Item{
			ID:                 uuid.New(),
			CompanyID:          input.CompanyID,
			SKU:                sku,
			Name:               strings.TrimSpace(input.Name),
			Unit:               input.Unit,
			InventoryAccountID: input.InventoryAccountID,
			COGSAccountID:      input.COGSAccountID,
			RevenueAccountID:   input.RevenueAccountID,
			IsActive:           true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, item.CompanyID, input.ActorID, "inventory.item.register", item.ID.String(), map[string]any{"sku": item.SKU})
	return item, nil
}

// DocumentResult is the outcome of a multi-line stock document.
type DocumentResult struct {
	Number  string
	Items   []Item
	Entries []StockLedgerEntry
}

// Adjust applies a stock count correction. Positive lines without a cost are
// valued at the running WAC.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (DocumentResult, error) {
	if err := input.Validate(); err != nil {
		return DocumentResult{}, err
	}
	movements := make([]Movement, 0, len(input.Lines))
	for _, l := range input.Lines {
		m := Movement{ItemID: l.ItemID, WarehouseID: input.WarehouseID, Quantity: l.Quantity}
		if l.UnitCost.Valid {
			m.UnitCost = l.UnitCost.Decimal
		} else {
			m.UseCurrentRate = true
		}
		movements = append(movements, m)
	}
	result, err := s.applyDocument(ctx, input.CompanyID, numbering.DocAdjustment, SourceAdjust, input.Number, input.Date, movements)
	if err != nil {
		return DocumentResult{}, err
	}
	s.record(ctx, input.CompanyID, input.ActorID, "inventory.adjust", result.Number, map[string]any{
		"warehouse_id": input.WarehouseID.String(),
		"lines":        len(input.Lines),
		"reason":       input.Reason,
	})
	return result, nil
}

// Transfer moves stock between warehouses. Each line issues from the source
// at the running WAC and receives into the destination at the same rate, so
// the item aggregate keeps its quantity, value and WAC.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (DocumentResult, error) {
	if err := input.Validate(); err != nil {
		return DocumentResult{}, err
	}
	movements := make([]Movement, 0, 2*len(input.Lines))
	for _, l := range input.Lines {
		movements = append(movements,
			Movement{ItemID: l.ItemID, WarehouseID: input.SrcWarehouse, Quantity: l.Quantity.Neg()},
			Movement{ItemID: l.ItemID, WarehouseID: input.DstWarehouse, Quantity: l.Quantity, UseCurrentRate: true},
		)
	}
	result, err := s.applyDocument(ctx, input.CompanyID, numbering.DocTransfer, SourceTransfer, input.Number, input.Date, movements)
	if err != nil {
		return DocumentResult{}, err
	}
	s.record(ctx, input.CompanyID, input.ActorID, "inventory.transfer", result.Number, map[string]any{
		"from":  input.SrcWarehouse.String(),
		"to":    input.DstWarehouse.String(),
		"lines": len(input.Lines),
		"note":  input.Note,
	})
	return result, nil
}

func (s *Service) applyDocument(ctx context.Context, companyID uuid.UUID, docType, sourceType, number string, date time.Time, movements []Movement) (DocumentResult, error) {
	if date.IsZero() {
		date = s.now()
	}
	var result DocumentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var res *numbering.Reservation
		if number == "" {
			r, err := numbering.Peek(ctx, tx, companyID, docType, date.Year())
			if err != nil {
				return err
			}
			number, res = r.Number, &r
		}
		key := shared.IdempotencyKey(docType, number)
		if err := s.idem.Check(ctx, tx, companyID, key); err != nil {
			return err
		}
		snap, err := s.valuation.Load(ctx, tx, companyID, movements)
		if err != nil {
			return err
		}
		folded, err := s.valuation.Fold(companyID, snap, movements, Source{Type: sourceType, ID: number})
		if err != nil {
			return err
		}
		if res != nil {
			if err := numbering.Commit(ctx, tx, *res); err != nil {
				return err
			}
		}
		if err := s.idem.Reserve(ctx, tx, companyID, key, "inventory"); err != nil {
			return err
		}
		if err := s.valuation.Commit(ctx, tx, folded); err != nil {
			return err
		}
		result = DocumentResult{Number: number, Items: folded.Items, Entries: folded.Entries}
		return nil
	})
	return result, err
}

// GetItem returns the item aggregate.
func (s *Service) GetItem(ctx context.Context, companyID, itemID uuid.UUID) (Item, error) {
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.GetItem(ctx, companyID, itemID)
		return err
	})
	return item, err
}

// StockLedger lists an item's rows in append order.
func (s *Service) StockLedger(ctx context.Context, companyID, itemID uuid.UUID) ([]StockLedgerEntry, error) {
	if itemID == uuid.Nil {
		return nil, fmt.Errorf("%w: inventory: item required", shared.ErrValidation)
	}
	var rows []StockLedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rows, err = tx.ListStockEntries(ctx, companyID, itemID)
		return err
	})
	return rows, err
}

func (s *Service) record(ctx context.Context, companyID, actorID uuid.UUID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "inventory_tx"
	if strings.HasPrefix(action, "inventory.item") {
		entity = "item"
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   shared.ActorFromContext(ctx, actorID),
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Meta:      meta,
		At:        s.now(),
	})
}
