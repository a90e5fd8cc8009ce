package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// PostgresPaymentRepository implements PaymentRepository on pgx. A partial
// unique index on payments(booking_id) WHERE status != 'FAILED' backs the
// single-active-payment invariant.
type PostgresPaymentRepository struct {
	pool   *pgxpool.Pool
	outbox *outbox.PostgresStore
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository.
func NewPostgresPaymentRepository(pool *pgxpool.Pool, store *outbox.PostgresStore) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool, outbox: store}
}

// Create inserts a new PENDING attempt.
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payments (
			id, booking_id, amount, currency, status, method,
			transaction_id, failure_reason, attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		payment.ID,
		payment.BookingID,
		payment.Amount,
		payment.Currency,
		payment.Status.String(),
		payment.Method,
		nullIfEmpty(payment.TransactionID),
		nullIfEmpty(payment.FailureReason),
		payment.AttemptCount,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrActivePaymentExists
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// Update writes the attempt's outcome and its outbox messages in one
// transaction.
func (r *PostgresPaymentRepository) Update(ctx context.Context, payment *domain.Payment, msgs ...*outbox.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE payments SET
			status = $2,
			transaction_id = $3,
			failure_reason = $4,
			updated_at = $5
		WHERE id = $1
	`,
		payment.ID,
		payment.Status.String(),
		nullIfEmpty(payment.TransactionID),
		nullIfEmpty(payment.FailureReason),
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}

	if len(msgs) > 0 {
		if err := r.outbox.CreateTx(ctx, tx, msgs...); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit payment update: %w", err)
	}
	return nil
}

// LatestByBooking returns the booking's most recent attempt.
func (r *PostgresPaymentRepository) LatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var status string
	var transactionID, failureReason *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, booking_id, amount, currency, status, method,
		       transaction_id, failure_reason, attempt_count, created_at, updated_at
		FROM payments
		WHERE booking_id = $1
		ORDER BY attempt_count DESC
		LIMIT 1
	`, bookingID).Scan(
		&payment.ID,
		&payment.BookingID,
		&payment.Amount,
		&payment.Currency,
		&status,
		&payment.Method,
		&transactionID,
		&failureReason,
		&payment.AttemptCount,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get latest payment for booking %s: %w", bookingID, err)
	}

	payment.Status = domain.PaymentStatus(status)
	if transactionID != nil {
		payment.TransactionID = *transactionID
	}
	if failureReason != nil {
		payment.FailureReason = *failureReason
	}
	return payment, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ PaymentRepository = (*PostgresPaymentRepository)(nil)
