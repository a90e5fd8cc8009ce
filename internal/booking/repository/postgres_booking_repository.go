package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// PostgresBookingRepository implements BookingRepository on pgx.
type PostgresBookingRepository struct {
	pool   *pgxpool.Pool
	outbox *outbox.PostgresStore
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository.
func NewPostgresBookingRepository(pool *pgxpool.Pool, store *outbox.PostgresStore) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool, outbox: store}
}

// Create inserts the booking and its outbox messages in one transaction.
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking, msgs ...*outbox.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO bookings (
			id, user_id, item_ref, quantity, amount, currency,
			status, created_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, query,
		booking.ID,
		booking.UserID,
		booking.ItemRef,
		booking.Quantity,
		booking.Amount,
		booking.Currency,
		booking.Status.String(),
		booking.CreatedAt,
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if len(msgs) > 0 {
		if err := r.outbox.CreateTx(ctx, tx, msgs...); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by its ID.
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `
		SELECT id, user_id, item_ref, quantity, amount, currency,
		       status, cancellation_reason, created_at, confirmed_at,
		       cancelled_at, version
		FROM bookings
		WHERE id = $1
	`

	booking := &domain.Booking{}
	var status string
	var reason *string

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ItemRef,
		&booking.Quantity,
		&booking.Amount,
		&booking.Currency,
		&status,
		&reason,
		&booking.CreatedAt,
		&booking.ConfirmedAt,
		&booking.CancelledAt,
		&booking.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	booking.Status = domain.BookingStatus(status)
	if reason != nil {
		booking.CancellationReason = *reason
	}
	return booking, nil
}

// Update writes the booking with a compare-and-swap on version, co-committing
// the outbox messages.
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking, msgs ...*outbox.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE bookings SET
			status = $2,
			cancellation_reason = $3,
			confirmed_at = $4,
			cancelled_at = $5,
			version = version + 1
		WHERE id = $1 AND version = $6
	`
	tag, err := tx.Exec(ctx, query,
		booking.ID,
		booking.Status.String(),
		nullIfEmpty(booking.CancellationReason),
		booking.ConfirmedAt,
		booking.CancelledAt,
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, booking.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check booking existence: %w", err)
		}
		if !exists {
			return domain.ErrBookingNotFound
		}
		return domain.ErrVersionConflict
	}

	if len(msgs) > 0 {
		if err := r.outbox.CreateTx(ctx, tx, msgs...); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit booking update: %w", err)
	}

	booking.Version++
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ BookingRepository = (*PostgresBookingRepository)(nil)
