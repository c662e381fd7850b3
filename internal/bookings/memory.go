package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for tests and single-node
// runs. It mirrors the PostgreSQL mapping, including the idempotency
// index.
type MemoryRepository struct {
	mu          sync.Mutex
	byID        map[string]Booking
	byIdemKey   map[string]string
	failNext    error
	insertDelay time.Duration
}

// NewMemoryRepository creates an empty memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:      make(map[string]Booking),
		byIdemKey: make(map[string]string),
	}
}

var _ Repository = (*MemoryRepository)(nil)

// FailNext makes the next repository call return err, for exercising
// persistence-failure paths in tests.
func (r *MemoryRepository) FailNext(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// SetInsertDelay adds latency to Insert, for exercising timeouts.
func (r *MemoryRepository) SetInsertDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertDelay = d
}

func (r *MemoryRepository) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

// Insert stores a booking.
func (r *MemoryRepository) Insert(ctx context.Context, b Booking) (Booking, error) {
	r.mu.Lock()
	delay := r.insertDelay
	r.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return Booking{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return Booking{}, err
	}
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.DateTime = b.DateTime.UTC()
	r.byID[b.ID] = b
	r.byIdemKey[b.IdempotencyKey()] = b.ID
	return b, nil
}

// GetByProviderAndDateRange scans for the provider's bookings in range.
func (r *MemoryRepository) GetByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}

	var result []Booking
	for _, b := range r.byID {
		if b.ProviderID != providerID {
			continue
		}
		if b.DateTime.Before(start) || b.DateTime.After(end) {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DateTime.Before(result[j].DateTime) })
	return result, nil
}

// GetByIdempotencyKey returns the booking for key, or nil.
func (r *MemoryRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	id, ok := r.byIdemKey[key]
	if !ok {
		return nil, nil
	}
	b := r.byID[id]
	return &b, nil
}

// GetByID loads one booking.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

// UpdateDateTime moves a booking and refreshes its idempotency key.
func (r *MemoryRepository) UpdateDateTime(ctx context.Context, id string, dateTime time.Time) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return Booking{}, err
	}
	b, ok := r.byID[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	delete(r.byIdemKey, b.IdempotencyKey())
	b.DateTime = dateTime.UTC()
	r.byID[id] = b
	r.byIdemKey[b.IdempotencyKey()] = id
	return b, nil
}

// UpdateStatus transitions a booking's status.
func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status Status) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	b.Status = status
	r.byID[id] = b
	return b, nil
}

// Delete removes a booking.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return err
	}
	b, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byIdemKey, b.IdempotencyKey())
	delete(r.byID, id)
	return nil
}
