package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// IssueStockDrift labels item aggregates that disagree with their stock ledger.
const IssueStockDrift = "stock_drift"

// Revaluator replays one company's stock ledger.
type Revaluator interface {
	Revaluate(ctx context.Context, companyID uuid.UUID, repair bool) (inventory.RevaluationReport, error)
}

// InventoryRevaluationJob compares item aggregates with a replay of their
// stock ledger rows, optionally repairing drifted items.
type InventoryRevaluationJob struct {
	Stock     Revaluator
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewInventoryRevaluationJob initialises the handler.
func NewInventoryRevaluationJob(stock Revaluator, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *InventoryRevaluationJob {
	return &InventoryRevaluationJob{Stock: stock, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle executes the revaluation.
func (j *InventoryRevaluationJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Stock == nil {
		return errors.New("inventory revaluation: handler not configured")
	}
	var payload RevaluationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("inventory revaluation: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	metrics := jobMetrics(j.Metrics)
	tracker := metrics.Track(TaskInventoryRevaluation)
	defer func() { err = tracker.End(err) }()
	logger := jobLogger(j.Logger, TaskInventoryRevaluation).With(slog.Bool("repair", payload.Repair))

	companies, err := scope(ctx, j.Companies, payload.CompanyID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, companyID := range companies {
		report, err := j.Stock.Revaluate(ctx, companyID, payload.Repair)
		if err != nil {
			logger.Error("revaluation failed", slog.String("company_id", companyID.String()), slog.Any("error", err))
			if firstErr == nil {
				firstErr = fmt.Errorf("inventory revaluation: company %s: %w", companyID, err)
			}
			continue
		}
		for _, d := range report.Drifts {
			logger.Warn("stock drift",
				slog.String("company_id", companyID.String()),
				slog.String("sku", d.SKU),
				slog.String("stored_qty", d.Stored.Qty.String()),
				slog.String("replayed_qty", d.Replayed.Qty.String()),
				slog.String("stored_value", d.Stored.Value.String()),
				slog.String("replayed_value", d.Replayed.Value.String()),
				slog.Bool("repaired", d.Repaired),
			)
		}
		metrics.AddIssues(IssueStockDrift, companyID, len(report.Drifts))
		logger.Info("revalued company", slog.String("company_id", companyID.String()),
			slog.Int("items", report.Items), slog.Int("drifts", len(report.Drifts)))
	}
	return firstErr
}
