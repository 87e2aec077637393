package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity verifies account totals against posted entries.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskInventoryRevaluation replays the stock ledger against item aggregates.
	TaskInventoryRevaluation = "inventory:revaluation"
	// TaskIdempotencyCleanup drops expired idempotency reservations.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ScopePayload targets one company, or every company when CompanyID is nil.
type ScopePayload struct {
	CompanyID    uuid.UUID `json:"company_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// RevaluationPayload extends the scope with the repair switch.
type RevaluationPayload struct {
	ScopePayload
	Repair bool `json:"repair"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger check.
func NewLedgerIntegrityTask(companyID uuid.UUID, at time.Time) (*asynq.Task, error) {
	return newTask(TaskLedgerIntegrity, ScopePayload{CompanyID: companyID, ScheduledFor: at})
}

// NewInventoryRevaluationTask constructs an Asynq task for inventory revaluation.
func NewInventoryRevaluationTask(companyID uuid.UUID, repair bool, at time.Time) (*asynq.Task, error) {
	return newTask(TaskInventoryRevaluation, RevaluationPayload{
		ScopePayload: ScopePayload{CompanyID: companyID, ScheduledFor: at},
		Repair:       repair,
	})
}

// NewIdempotencyCleanupTask constructs an Asynq task for key expiry.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, ScopePayload{ScheduledFor: at})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
