package close

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Guard is the read-phase posting check composed into other units of work.
type Guard struct {
	policy GatePolicy
}

// NewGuard builds a guard for policy; a blank policy gates every path.
func NewGuard(policy GatePolicy) *Guard {
	if policy == "" {
		policy = GateAll
	}
	return &Guard{policy: policy}
}

// Policy returns the configured gate policy.
func (g *Guard) Policy() GatePolicy {
	if g == nil {
		return GateAll
	}
	return g.policy
}

// EnsureOpen fails with ErrPeriodClosed when a gated posting dated date falls
// in a closed period. A nil guard checks nothing.
func (g *Guard) EnsureOpen(ctx context.Context, tx PeriodReader, companyID uuid.UUID, date time.Time, sourceType string) error {
	if g == nil || !g.policy.Gates(sourceType) {
		return nil
	}
	open, err := periodOpen(ctx, tx, companyID, date)
	if err != nil {
		return err
	}
	if !open {
		return fmt.Errorf("%w (%s)", ErrPeriodClosed, PeriodKey(date.Year(), int(date.Month())))
	}
	return nil
}
