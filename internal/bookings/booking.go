package bookings

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status tracks a booking through its lifecycle. A booking row is
// immutable after commit except for status transitions.
type Status string

const (
	StatusNotCompleted Status = "NotCompleted"
	StatusInProgress   Status = "InProgress"
	StatusCompleted    Status = "Completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotCompleted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Booking is one committed reservation of a provider's time.
type Booking struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	UserID     string    `json:"user_id"`
	ProviderID string    `json:"provider_id"`
	QuoteID    string    `json:"quote_id"`
	BusinessID string    `json:"business_id"`
	DateTime   time.Time `json:"date_time"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdempotencyKey derives the natural key used to de-duplicate commit
// retries: the same provider, quote and instant always map to one booking.
func (b Booking) IdempotencyKey() string {
	return IdempotencyKey(b.ProviderID, b.QuoteID, b.DateTime)
}

// IdempotencyKey builds the natural retry key for a commit request.
func IdempotencyKey(providerID, quoteID string, dateTime time.Time) string {
	return fmt.Sprintf("%s|%s|%s", providerID, quoteID, dateTime.UTC().Format(time.RFC3339))
}

// ValidateUUID checks that id is a well-formed version-4 UUID. Callers
// validate identifiers before any repository call.
func ValidateUUID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("bookings: malformed uuid %q: %w", id, err)
	}
	if parsed.Version() != 4 {
		return fmt.Errorf("bookings: uuid %q is not version 4", id)
	}
	return nil
}
