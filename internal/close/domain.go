package close

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodStatus enumerates fiscal period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// Period is a calendar month of a company's fiscal calendar. A month with no
// stored period is open.
type Period struct {
	CompanyID  uuid.UUID
	Year       int
	Month      int
	Status     PeriodStatus
	ClosedBy   uuid.UUID
	ClosedAt   *time.Time
	ReopenedBy uuid.UUID
	ReopenedAt *time.Time
	Version    int64
}

// Key renders the period as YYYY-MM.
func (p Period) Key() string {
	return PeriodKey(p.Year, p.Month)
}

// IsClosed reports whether postings into the period are blocked.
func (p Period) IsClosed() bool {
	return p.Status == PeriodStatusClosed
}

// PeriodInput identifies a period for close and reopen requests.
type PeriodInput struct {
	CompanyID uuid.UUID
	Year      int
	Month     int
	ActorID   uuid.UUID
}

// GatePolicy selects which posting paths consult the period guard.
type GatePolicy string

const (
	// GateAll checks every posting path.
	GateAll GatePolicy = "all"
	// GateManual checks only manually keyed entries, opening balances and voids.
	GateManual GatePolicy = "manual"
)

// Source types gated under GateManual.
var manualSources = map[string]struct{}{
	"MANUAL":   {},
	"OPENING":  {},
	"REVERSAL": {},
}

var (
	// ErrPeriodNotFound indicates the period was never closed or created.
	ErrPeriodNotFound = fmt.Errorf("%w: close: period not found", shared.ErrNotFound)
	// ErrAlreadyClosed indicates a close request for a closed period.
	ErrAlreadyClosed = fmt.Errorf("%w: close: period already closed", shared.ErrState)
	// ErrReopenMissing indicates a reopen request for a period that does not exist.
	ErrReopenMissing = fmt.Errorf("%w: close: period does not exist", shared.ErrState)
	// ErrPeriodClosed indicates the posting date falls in a closed period.
	ErrPeriodClosed = fmt.Errorf("%w: close: posting date in closed period", shared.ErrPeriodClosed)
)

// Validate ensures the period request is well formed.
func (in PeriodInput) Validate() error {
	if in.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: close: company required", shared.ErrValidation)
	}
	if in.Year < 1900 || in.Year > 9999 {
		return fmt.Errorf("%w: close: year %d out of range", shared.ErrValidation, in.Year)
	}
	if in.Month < 1 || in.Month > 12 {
		return fmt.Errorf("%w: close: month %d out of range", shared.ErrValidation, in.Month)
	}
	return nil
}

// ParseGatePolicy resolves the configured policy; blank means GateAll.
func ParseGatePolicy(raw string) (GatePolicy, error) {
	switch GatePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", GateAll:
		return GateAll, nil
	case GateManual:
		return GateManual, nil
	default:
		return "", errors.New("close: unknown period gate policy " + raw)
	}
}

// Gates reports whether a posting with sourceType must pass the period check.
func (p GatePolicy) Gates(sourceType string) bool {
	if p == GateManual {
		_, ok := manualSources[strings.ToUpper(sourceType)]
		return ok
	}
	return true
}

// PeriodKey renders year and month as YYYY-MM.
func PeriodKey(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}
