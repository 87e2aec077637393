package shared

import "errors"

// Error categories. Module errors wrap one of these so callers can branch
// with errors.Is regardless of which component raised them.
var (
	// ErrValidation indicates malformed input or a violated business rule.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrState indicates an illegal lifecycle transition.
	ErrState = errors.New("invalid state transition")
	// ErrPeriodClosed indicates the posting date falls in a closed fiscal period.
	ErrPeriodClosed = errors.New("fiscal period closed")
	// ErrConcurrency indicates the store reported a write conflict.
	ErrConcurrency = errors.New("concurrent modification")
	// ErrDuplicateOperation indicates the idempotency key was already processed.
	ErrDuplicateOperation = errors.New("operation already processed")
	// ErrReadAfterWrite indicates a unit of work issued a read after its first write.
	ErrReadAfterWrite = errors.New("read issued after write in unit of work")
)

// IsRetryable reports whether the whole unit of work may be re-executed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrency)
}

// IsDefinitive reports whether err is a business failure detected before any write.
func IsDefinitive(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrPeriodClosed)
}
