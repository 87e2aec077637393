package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// CompanyLister enumerates the companies a scheduled job sweeps.
type CompanyLister func(ctx context.Context) ([]uuid.UUID, error)

// IntegrityChecker verifies one company's ledger.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context, companyID uuid.UUID) (accounting.IntegrityReport, error)
}

// LedgerIntegrityJob checks the balance identity, per-entry balance and
// account totals for every company in scope.
type LedgerIntegrityJob struct {
	Ledger    IntegrityChecker
	Companies CompanyLister
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewLedgerIntegrityJob initialises the handler.
func NewLedgerIntegrityJob(ledger IntegrityChecker, companies CompanyLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Ledger: ledger, Companies: companies, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity check.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload ScopePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	metrics := jobMetrics(j.Metrics)
	tracker := metrics.Track(TaskLedgerIntegrity)
	defer func() { err = tracker.End(err) }()
	logger := jobLogger(j.Logger, TaskLedgerIntegrity)

	companies, err := scope(ctx, j.Companies, payload.CompanyID)
	if err != nil {
		return err
	}
	var firstErr error
	issues := 0
	for _, companyID := range companies {
		report, err := j.Ledger.CheckIntegrity(ctx, companyID)
		if err != nil {
			logger.Error("integrity check failed", slog.String("company_id", companyID.String()), slog.Any("error", err))
			if firstErr == nil {
				firstErr = fmt.Errorf("ledger integrity: company %s: %w", companyID, err)
			}
			continue
		}
		for _, issue := range report.Issues {
			logger.Warn("ledger inconsistency",
				slog.String("company_id", companyID.String()),
				slog.String("kind", issue.Kind),
				slog.String("ref", issue.Ref),
				slog.String("detail", issue.Detail),
			)
			metrics.AddIssues(issue.Kind, companyID, 1)
		}
		issues += len(report.Issues)
	}
	logger.Info("completed ledger integrity check", slog.Int("companies", len(companies)), slog.Int("issues", issues))
	return firstErr
}

func scope(ctx context.Context, companies CompanyLister, companyID uuid.UUID) ([]uuid.UUID, error) {
	if companyID != uuid.Nil {
		return []uuid.UUID{companyID}, nil
	}
	if companies == nil {
		return nil, errors.New("jobs: company lister not configured")
	}
	return companies(ctx)
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func jobMetrics(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}
