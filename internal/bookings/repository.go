package bookings

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the booking does not exist.
var ErrNotFound = errors.New("bookings: not found")

// Repository is the durable store for committed bookings. The
// availability engine owns all writes; it serializes per provider/day, so
// implementations only need row-level consistency, not their own conflict
// checking.
type Repository interface {
	// Insert persists a new booking and returns it with any
	// store-assigned fields filled in.
	Insert(ctx context.Context, b Booking) (Booking, error)
	// GetByProviderAndDateRange returns bookings for the provider whose
	// DateTime falls within [start, end], sorted by DateTime.
	GetByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time) ([]Booking, error)
	// GetByIdempotencyKey returns the booking committed under the natural
	// retry key, or nil when none exists.
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)
	// UpdateDateTime moves a booking to a new instant and returns the
	// updated row.
	UpdateDateTime(ctx context.Context, id string, dateTime time.Time) (Booking, error)
	// UpdateStatus transitions a booking's status.
	UpdateStatus(ctx context.Context, id string, status Status) (Booking, error)
	// GetByID loads one booking.
	GetByID(ctx context.Context, id string) (Booking, error)
	// Delete removes a booking.
	Delete(ctx context.Context, id string) error
}
