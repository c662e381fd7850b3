package availability

import (
	"fmt"
	"time"
)

// ValidationError reports a malformed commit request. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("availability: invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports that the requested slot overlaps a committed
// booking for the same provider. Surfaced to the caller for a user-facing
// re-prompt; retrying with the same slot values is pointless.
type ConflictError struct {
	ProviderID string
	DateTime   time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("availability: provider %s already booked around %s", e.ProviderID, e.DateTime.Format(time.RFC3339))
}

// PersistenceError wraps a repository failure or timeout. Callers may
// retry the operation under its idempotency key.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("availability: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReconciliationRequired reports that a booking was committed but the
// availability recompute for its day failed. The booking stands; the
// cached windows for the named day need background repair.
type ReconciliationRequired struct {
	ProviderID string
	Date       string
	Err        error
}

func (e *ReconciliationRequired) Error() string {
	return fmt.Sprintf("availability: booking committed but windows for %s/%s need reconciliation: %v", e.ProviderID, e.Date, e.Err)
}

func (e *ReconciliationRequired) Unwrap() error { return e.Err }
