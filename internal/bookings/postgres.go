package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxDB is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists bookings in PostgreSQL via pgx.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository creates a repository backed by a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting mocks for tests.
func NewPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

const bookingColumns = `id, status, user_id, provider_id, quote_id, business_id, date_time, created_at`

// Insert persists a new booking row.
func (r *PostgresRepository) Insert(ctx context.Context, b Booking) (Booking, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO bookings (id, status, user_id, provider_id, quote_id, business_id, date_time, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+bookingColumns,
		b.ID, string(b.Status), b.UserID, b.ProviderID, b.QuoteID, b.BusinessID, b.DateTime.UTC(), b.IdempotencyKey(), b.CreatedAt,
	)
	inserted, err := scanBooking(row)
	if err != nil {
		return Booking{}, fmt.Errorf("bookings: insert: %w", err)
	}
	return inserted, nil
}

// GetByProviderAndDateRange returns the provider's bookings within
// [start, end], ordered by instant.
func (r *PostgresRepository) GetByProviderAndDateRange(ctx context.Context, providerID string, start, end time.Time) ([]Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE provider_id = $1 AND date_time >= $2 AND date_time <= $3
		 ORDER BY date_time`,
		providerID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("bookings: query by provider and range: %w", err)
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan row: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: iterate rows: %w", err)
	}
	return result, nil
}

// GetByIdempotencyKey returns the booking committed under key, or nil.
func (r *PostgresRepository) GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = $1`,
		key,
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: query by idempotency key: %w", err)
	}
	return &b, nil
}

// GetByID loads one booking.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Booking, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`,
		id,
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, fmt.Errorf("bookings: load by id: %w", err)
	}
	return b, nil
}

// UpdateDateTime moves the booking to a new instant, refreshing the
// idempotency key so a reschedule does not collide with the original
// commit's retry key.
func (r *PostgresRepository) UpdateDateTime(ctx context.Context, id string, dateTime time.Time) (Booking, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	newKey := IdempotencyKey(current.ProviderID, current.QuoteID, dateTime)
	row := r.db.QueryRow(ctx,
		`UPDATE bookings SET date_time = $1, idempotency_key = $2 WHERE id = $3
		 RETURNING `+bookingColumns,
		dateTime.UTC(), newKey, id,
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, fmt.Errorf("bookings: update date_time: %w", err)
	}
	return b, nil
}

// UpdateStatus transitions a booking's status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) (Booking, error) {
	row := r.db.QueryRow(ctx,
		`UPDATE bookings SET status = $1 WHERE id = $2 RETURNING `+bookingColumns,
		string(status), id,
	)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, fmt.Errorf("bookings: update status: %w", err)
	}
	return b, nil
}

// Delete removes a booking row.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bookings: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBooking(row pgx.Row) (Booking, error) {
	var (
		b      Booking
		status string
	)
	err := row.Scan(&b.ID, &status, &b.UserID, &b.ProviderID, &b.QuoteID, &b.BusinessID, &b.DateTime, &b.CreatedAt)
	if err != nil {
		return Booking{}, err
	}
	b.Status = Status(status)
	return b, nil
}
