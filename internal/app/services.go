package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	closepkg "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/numbering"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Store is the persistence handle shared by every service. Both the
// PostgreSQL and the in-memory store satisfy it.
type Store interface {
	Accounting() accounting.RepositoryPort
	Inventory() inventory.RepositoryPort
	Periods() closepkg.RepositoryPort
	Numbering() numbering.RepositoryPort
	Integration() integration.RepositoryPort
	Idempotency() shared.IdempotencyRepository
	Companies(ctx context.Context) ([]uuid.UUID, error)
}

// Services groups the wired ledger services.
type Services struct {
	Ledger      *accounting.Service
	Stock       *inventory.Service
	Periods     *closepkg.Service
	Numbers     *numbering.Service
	Documents   *integration.Service
	Idempotency *shared.IdempotencyGuard
	Companies   func(ctx context.Context) ([]uuid.UUID, error)
}

// NewServices wires every service over one store. cache may be nil.
func NewServices(cfg *Config, store Store, audit shared.AuditPort, cache accounting.BalanceCache, logger *slog.Logger) *Services {
	ledger := accounting.NewService(store.Accounting(), audit, closepkg.NewGuard(cfg.GatePolicy()))
	ledger.WithLogger(logger)
	if cache != nil {
		ledger.WithCache(cache)
	}
	stock := inventory.NewService(store.Inventory(), audit, inventory.ServiceConfig{
		AllowNegativeStock: cfg.InventoryAllowNegativeStock,
	})
	return &Services{
		Ledger:      ledger,
		Stock:       stock,
		Periods:     closepkg.NewService(store.Periods(), audit),
		Numbers:     numbering.NewService(store.Numbering()),
		Documents:   integration.NewService(store.Integration(), ledger, stock, audit),
		Idempotency: shared.NewIdempotencyGuard(store.Idempotency()),
		Companies:   store.Companies,
	}
}
