package availability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bookline-ai/bookline/internal/bookings"
	"github.com/bookline-ai/bookline/internal/directory"
	"github.com/bookline-ai/bookline/internal/observability/metrics"
	"github.com/bookline-ai/bookline/pkg/logging"
)

// Config tunes the availability engine.
type Config struct {
	// SlotDuration is the default service duration used for conflict
	// checking and window computation when a request does not supply one.
	SlotDuration time.Duration
	// RepositoryTimeout bounds every repository call; expiry surfaces as
	// PersistenceError instead of hanging the commit path.
	RepositoryTimeout time.Duration
	// DayStartHour/DayEndHour bound the operating day in the business
	// timezone. 0 and 24 mean the full civil day.
	DayStartHour int
	DayEndHour   int
	// RetryMaxAttempts/RetryBaseDelay drive CommitWithRetry's bounded
	// backoff on persistence failures.
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SlotDuration:      time.Hour,
		RepositoryTimeout: 5 * time.Second,
		DayStartHour:      0,
		DayEndHour:        24,
		RetryMaxAttempts:  3,
		RetryBaseDelay:    200 * time.Millisecond,
	}
}

// Request asks for a booking commit. DateTime is an RFC 3339 instant;
// Duration optionally overrides the engine's default service duration for
// conflict checking.
type Request struct {
	ProviderID string
	BusinessID string
	UserID     string
	QuoteID    string
	DateTime   string
	Duration   time.Duration
}

// Engine maintains per-ProviderDay availability and performs
// conflict-checked booking commits. All mutations for one provider/day run
// under that day's lock, so the read-conflict-check-write sequence is
// atomic per day while different providers and days proceed in parallel.
type Engine struct {
	repo      bookings.Repository
	directory directory.Directory
	locks     *dayLocks
	cache     *windowCache
	cfg       Config
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
}

// NewEngine wires an availability engine. metrics may be nil.
func NewEngine(repo bookings.Repository, dir directory.Directory, cfg Config, logger *logging.Logger, m *metrics.BookingMetrics) *Engine {
	if repo == nil {
		panic("availability: repository cannot be nil")
	}
	if dir == nil {
		panic("availability: directory cannot be nil")
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = DefaultConfig().SlotDuration
	}
	if cfg.RepositoryTimeout <= 0 {
		cfg.RepositoryTimeout = DefaultConfig().RepositoryTimeout
	}
	if cfg.DayEndHour <= cfg.DayStartHour {
		cfg.DayStartHour = 0
		cfg.DayEndHour = 24
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = DefaultConfig().RetryMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultConfig().RetryBaseDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		repo:      repo,
		directory: dir,
		locks:     newDayLocks(),
		cache:     newWindowCache(),
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// GetAvailability returns the free windows of the provider's civil day,
// anchored to the business timezone. The repository is authoritative; the
// result also refreshes the engine's window cache.
func (e *Engine) GetAvailability(ctx context.Context, providerID, date, businessID string) ([]Window, error) {
	e.metrics.ObserveAvailabilityQuery()

	if err := bookings.ValidateUUID(providerID); err != nil {
		return nil, &ValidationError{Field: "providerId", Reason: err.Error()}
	}
	if err := parseDate(date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: err.Error()}
	}
	zone, err := e.resolveZone(ctx, businessID)
	if err != nil {
		return nil, err
	}

	day := ProviderDay{ProviderID: providerID, Date: date, Zone: zone}
	windows, err := e.recomputeDay(ctx, day)
	if err != nil {
		return nil, err
	}
	return windows, nil
}

// CommitBooking validates the request and creates the booking as a single
// serialized unit per provider/day: conflict check, insert, and window
// recompute happen under the day lock, so no other commit for the same
// provider/day can interleave. On success the updated windows are
// published before returning.
//
// The one non-atomic failure mode is a recompute failure after the insert
// (or after a retried request resolves to the booking committed the first
// time): the booking stands and the error is ReconciliationRequired,
// returned alongside the committed booking.
func (e *Engine) CommitBooking(ctx context.Context, req Request) (bookings.Booking, error) {
	started := time.Now()
	b, err := e.commitBooking(ctx, req)
	e.metrics.ObserveCommit(commitStatus(err), time.Since(started).Seconds())
	return b, err
}

func (e *Engine) commitBooking(ctx context.Context, req Request) (bookings.Booking, error) {
	at, err := e.validateRequest(req)
	if err != nil {
		return bookings.Booking{}, err
	}
	zone, err := e.resolveZone(ctx, req.BusinessID)
	if err != nil {
		return bookings.Booking{}, err
	}

	day := providerDayOf(req.ProviderID, at, zone)
	e.locks.acquire(day.Key())
	defer e.locks.release(day.Key())

	// A retried request returns the booking committed the first time.
	idemKey := bookings.IdempotencyKey(req.ProviderID, req.QuoteID, at)
	existing, err := e.getByIdempotencyKey(ctx, idemKey)
	if err != nil {
		return bookings.Booking{}, err
	}
	if existing != nil {
		// The first attempt may have died before publishing. Recompute so
		// a resolved retry leaves the cache as current as a clean commit.
		if _, err := e.recomputeDay(ctx, day); err != nil {
			e.metrics.ObserveReconciliationRequired()
			e.logger.Error("availability recompute failed after idempotent resolution",
				"provider_id", day.ProviderID,
				"date", day.Date,
				"booking_id", existing.ID,
				"error", err,
			)
			return *existing, &ReconciliationRequired{ProviderID: day.ProviderID, Date: day.Date, Err: err}
		}
		return *existing, nil
	}

	dayStart, dayEnd, err := day.Bounds(e.cfg.DayStartHour, e.cfg.DayEndHour)
	if err != nil {
		return bookings.Booking{}, &ValidationError{Field: "date", Reason: err.Error()}
	}
	booked, err := e.fetchDayBookings(ctx, day.ProviderID, dayStart, dayEnd)
	if err != nil {
		return bookings.Booking{}, err
	}

	duration := req.Duration
	if duration <= 0 {
		duration = e.cfg.SlotDuration
	}
	if e.overlaps(at, duration, booked, "") {
		return bookings.Booking{}, &ConflictError{ProviderID: req.ProviderID, DateTime: at}
	}

	inserted, err := e.insert(ctx, bookings.Booking{
		Status:     bookings.StatusInProgress,
		UserID:     req.UserID,
		ProviderID: req.ProviderID,
		QuoteID:    req.QuoteID,
		BusinessID: req.BusinessID,
		DateTime:   at,
	})
	if err != nil {
		return bookings.Booking{}, err
	}

	if _, err := e.recomputeDay(ctx, day); err != nil {
		e.metrics.ObserveReconciliationRequired()
		e.logger.Error("availability recompute failed after commit",
			"provider_id", day.ProviderID,
			"date", day.Date,
			"booking_id", inserted.ID,
			"error", err,
		)
		return inserted, &ReconciliationRequired{ProviderID: day.ProviderID, Date: day.Date, Err: err}
	}
	return inserted, nil
}

// CommitWithRetry retries CommitBooking on persistence failures only,
// with exponential backoff. The idempotency key makes retries safe:
// a commit whose response was lost resolves to the original booking.
// ReconciliationRequired is a post-commit condition, not a failed
// commit; it is returned to the caller as-is, never retried.
func (e *Engine) CommitWithRetry(ctx context.Context, req Request) (bookings.Booking, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.RetryMaxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryBaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return bookings.Booking{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		b, err := e.CommitBooking(ctx, req)
		// Checked before the persistence test: the recompute failure it
		// wraps must not trigger a retry of a commit that already stands.
		var rr *ReconciliationRequired
		if errors.As(err, &rr) {
			return b, err
		}
		var pe *PersistenceError
		if errors.As(err, &pe) {
			lastErr = err
			continue
		}
		return b, err
	}
	return bookings.Booking{}, lastErr
}

// CancelBooking removes a booking under its day's lock and republishes
// the day's windows.
func (e *Engine) CancelBooking(ctx context.Context, id string) error {
	if err := bookings.ValidateUUID(id); err != nil {
		return &ValidationError{Field: "id", Reason: err.Error()}
	}
	b, err := e.getByID(ctx, id)
	if err != nil {
		return err
	}
	zone, err := e.resolveZone(ctx, b.BusinessID)
	if err != nil {
		return err
	}

	day := providerDayOf(b.ProviderID, b.DateTime, zone)
	e.locks.acquire(day.Key())
	defer e.locks.release(day.Key())

	if err := e.delete(ctx, id); err != nil {
		return err
	}
	if _, err := e.recomputeDay(ctx, day); err != nil {
		e.metrics.ObserveReconciliationRequired()
		return &ReconciliationRequired{ProviderID: day.ProviderID, Date: day.Date, Err: err}
	}
	return nil
}

// RescheduleBooking moves a booking to a new instant, serializing across
// both the old and the new ProviderDay when they differ. Locks are taken
// in key order so two opposing reschedules cannot deadlock.
func (e *Engine) RescheduleBooking(ctx context.Context, id, newDateTime string) (bookings.Booking, error) {
	if err := bookings.ValidateUUID(id); err != nil {
		return bookings.Booking{}, &ValidationError{Field: "id", Reason: err.Error()}
	}
	at, err := time.Parse(time.RFC3339, newDateTime)
	if err != nil {
		return bookings.Booking{}, &ValidationError{Field: "dateTime", Reason: err.Error()}
	}
	at = at.UTC()

	b, err := e.getByID(ctx, id)
	if err != nil {
		return bookings.Booking{}, err
	}
	zone, err := e.resolveZone(ctx, b.BusinessID)
	if err != nil {
		return bookings.Booking{}, err
	}

	oldDay := providerDayOf(b.ProviderID, b.DateTime, zone)
	newDay := providerDayOf(b.ProviderID, at, zone)

	keys := []string{oldDay.Key()}
	if newDay.Key() != oldDay.Key() {
		keys = append(keys, newDay.Key())
		if keys[1] < keys[0] {
			keys[0], keys[1] = keys[1], keys[0]
		}
	}
	for _, k := range keys {
		e.locks.acquire(k)
	}
	defer func() {
		for _, k := range keys {
			e.locks.release(k)
		}
	}()

	dayStart, dayEnd, err := newDay.Bounds(e.cfg.DayStartHour, e.cfg.DayEndHour)
	if err != nil {
		return bookings.Booking{}, &ValidationError{Field: "dateTime", Reason: err.Error()}
	}
	booked, err := e.fetchDayBookings(ctx, b.ProviderID, dayStart, dayEnd)
	if err != nil {
		return bookings.Booking{}, err
	}
	// The booking being moved must not conflict with itself.
	if e.overlaps(at, e.cfg.SlotDuration, booked, b.ID) {
		return bookings.Booking{}, &ConflictError{ProviderID: b.ProviderID, DateTime: at}
	}

	moved, err := e.updateDateTime(ctx, id, at)
	if err != nil {
		return bookings.Booking{}, err
	}

	for _, day := range []ProviderDay{oldDay, newDay} {
		if _, err := e.recomputeDay(ctx, day); err != nil {
			e.metrics.ObserveReconciliationRequired()
			return moved, &ReconciliationRequired{ProviderID: day.ProviderID, Date: day.Date, Err: err}
		}
		if oldDay.Key() == newDay.Key() {
			break
		}
	}
	return moved, nil
}

// CachedWindows returns the last published windows for a provider/day, if
// any. Commits publish before returning, so after a successful commit this
// view is never staler than the commit.
func (e *Engine) CachedWindows(providerID, date string) ([]Window, bool) {
	return e.cache.get(providerID + "|" + date)
}

func (e *Engine) validateRequest(req Request) (time.Time, error) {
	for _, id := range []struct {
		field string
		value string
	}{
		{"providerId", req.ProviderID},
		{"businessId", req.BusinessID},
		{"userId", req.UserID},
		{"quoteId", req.QuoteID},
	} {
		if strings.TrimSpace(id.value) == "" {
			return time.Time{}, &ValidationError{Field: id.field, Reason: "required"}
		}
		if err := bookings.ValidateUUID(id.value); err != nil {
			return time.Time{}, &ValidationError{Field: id.field, Reason: err.Error()}
		}
	}
	at, err := time.Parse(time.RFC3339, req.DateTime)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "dateTime", Reason: err.Error()}
	}
	return at.UTC(), nil
}

// overlaps reports whether [at, at+duration) intersects any booked
// interval, skipping the booking with excludeID.
func (e *Engine) overlaps(at time.Time, duration time.Duration, booked []bookings.Booking, excludeID string) bool {
	end := at.Add(duration)
	for _, b := range booked {
		if excludeID != "" && b.ID == excludeID {
			continue
		}
		bookedEnd := b.DateTime.Add(e.cfg.SlotDuration)
		if at.Before(bookedEnd) && b.DateTime.Before(end) {
			return true
		}
	}
	return false
}

// recomputeDay fetches the day's bookings and publishes fresh windows.
func (e *Engine) recomputeDay(ctx context.Context, day ProviderDay) ([]Window, error) {
	dayStart, dayEnd, err := day.Bounds(e.cfg.DayStartHour, e.cfg.DayEndHour)
	if err != nil {
		return nil, &ValidationError{Field: "date", Reason: err.Error()}
	}
	booked, err := e.fetchDayBookings(ctx, day.ProviderID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	windows := computeWindows(dayStart, dayEnd, booked, e.cfg.SlotDuration)
	e.cache.publish(day.Key(), windows)
	return windows, nil
}

func (e *Engine) resolveZone(ctx context.Context, businessID string) (*time.Location, error) {
	zone, err := e.directory.TimeZone(ctx, businessID)
	if err != nil {
		return nil, &PersistenceError{Op: "resolve business timezone", Err: err}
	}
	return zone, nil
}

func (e *Engine) fetchDayBookings(ctx context.Context, providerID string, start, end time.Time) ([]bookings.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RepositoryTimeout)
	defer cancel()
	// Reach one slot before the day start so a booking spilling across
	// midnight still blocks the day's first slot. The range is inclusive at
	// the repository; shave the end instant so a booking starting exactly
	// at the next day's start is not pulled in.
	booked, err := e.repo.GetByProviderAndDateRange(ctx, providerID, start.Add(-e.cfg.SlotDuration), end.Add(-time.Nanosecond))
	if err != nil {
		return nil, &PersistenceError{Op: "fetch bookings", Err: err}
	}
	return booked, nil
}

func (e *Engine) getByIdempotencyKey(ctx context.Context, key string) (*bookings.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RepositoryTimeout)
	defer cancel()
	b, err := e.repo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, &PersistenceError{Op: "idempotency lookup", Err: err}
	}
	return b, nil
}

func (e *Engine) insert(ctx context.Context, b bookings.Booking) (bookings.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RepositoryTimeout)
	defer cancel()
	inserted, err := e.repo.Insert(ctx, b)
	if err != nil {
		return bookings.Booking{}, &PersistenceError{Op: "insert booking", Err: err}
	}
	return inserted, nil
}

func (e *Engine) getByID(ctx context.Context, id string) (bookings.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RepositoryTimeout)
	defer cancel()
	b, err := e.repo.GetByID(ctx, id)
	if errors.Is(err, bookings.ErrNotFound) {
		return bookings.Booking{}, err
	}
	if err != nil {
		return bookings.Booking{}, &PersistenceError{Op: "load booking", Err: err}
	}
	return b, nil
}

func (e *Engine) updateDateTime(ctx context.Context, id string, at time.Time) (bookings.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RepositoryTimeout)
	defer cancel()
	b, err := e.repo.UpdateDateTime(ctx, id, at)
	if errors.Is(err, bookings.ErrNotFound) {
		return bookings.Booking{}, err
	}
	if err != nil {
		return bookings.Booking{}, &PersistenceError{Op: "update booking", Err: err}
	}
	return b, nil
}

func (e *Engine) delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RepositoryTimeout)
	defer cancel()
	if err := e.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, bookings.ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "delete booking", Err: err}
	}
	return nil
}

func commitStatus(err error) string {
	switch {
	case err == nil:
		return "committed"
	case isA[*ConflictError](err):
		return "conflict"
	case isA[*ValidationError](err):
		return "validation"
	case isA[*ReconciliationRequired](err):
		return "reconciliation_required"
	default:
		return "persistence"
	}
}

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
