package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// PostgresInventoryRepository implements InventoryRepository on pgx. The
// item lock is SELECT ... FOR UPDATE on inventory_items.
type PostgresInventoryRepository struct {
	pool   *pgxpool.Pool
	outbox *outbox.PostgresStore
}

// NewPostgresInventoryRepository creates a new PostgresInventoryRepository.
func NewPostgresInventoryRepository(pool *pgxpool.Pool, store *outbox.PostgresStore) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{pool: pool, outbox: store}
}

type postgresTx struct {
	tx     pgx.Tx
	outbox *outbox.PostgresStore
}

// WithItemLock opens a transaction, locks the item row and runs fn.
func (r *PostgresInventoryRepository) WithItemLock(ctx context.Context, itemRef string, fn func(ctx context.Context, tx Tx, item *domain.InventoryItem) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item := &domain.InventoryItem{}
	err = tx.QueryRow(ctx, `
		SELECT item_ref, total, available, reserved, updated_at
		FROM inventory_items
		WHERE item_ref = $1
		FOR UPDATE
	`, itemRef).Scan(&item.ItemRef, &item.Total, &item.Available, &item.Reserved, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrItemNotFound
		}
		return fmt.Errorf("failed to lock inventory item %s: %w", itemRef, err)
	}

	if err := fn(ctx, &postgresTx{tx: tx, outbox: r.outbox}, item); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit inventory transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) UpdateItem(ctx context.Context, item *domain.InventoryItem) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE inventory_items
		SET total = $2, available = $3, reserved = $4, updated_at = $5
		WHERE item_ref = $1
	`, item.ItemRef, item.Total, item.Available, item.Reserved, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update inventory item %s: %w", item.ItemRef, err)
	}
	return nil
}

func (t *postgresTx) InsertReservation(ctx context.Context, res *domain.InventoryReservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory_reservations (
			id, booking_id, item_ref, quantity, status,
			expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.ID, res.BookingID, res.ItemRef, res.Quantity, res.Status.String(), res.ExpiresAt, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reservation for booking %s: %w", res.BookingID, err)
	}
	return nil
}

func (t *postgresTx) UpdateReservation(ctx context.Context, res *domain.InventoryReservation) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE inventory_reservations
		SET status = $2, confirmed_at = $3, released_at = $4
		WHERE id = $1
	`, res.ID, res.Status.String(), res.ConfirmedAt, res.ReleasedAt)
	if err != nil {
		return fmt.Errorf("failed to update reservation %s: %w", res.ID, err)
	}
	return nil
}

func (t *postgresTx) GetReservationByBooking(ctx context.Context, bookingID string) (*domain.InventoryReservation, error) {
	return scanReservation(t.tx.QueryRow(ctx, reservationQuery+` WHERE booking_id = $1`, bookingID))
}

func (t *postgresTx) AppendOutbox(ctx context.Context, msgs ...*outbox.Message) error {
	return t.outbox.CreateTx(ctx, t.tx, msgs...)
}

// UpsertItem creates or resets an item's stock.
func (r *PostgresInventoryRepository) UpsertItem(ctx context.Context, item *domain.InventoryItem) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inventory_items (item_ref, total, available, reserved, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (item_ref)
		DO UPDATE SET total = $2, available = $3, reserved = $4, updated_at = $5
	`, item.ItemRef, item.Total, item.Available, item.Reserved, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert inventory item %s: %w", item.ItemRef, err)
	}
	return nil
}

// GetItem reads an item without locking.
func (r *PostgresInventoryRepository) GetItem(ctx context.Context, itemRef string) (*domain.InventoryItem, error) {
	item := &domain.InventoryItem{}
	err := r.pool.QueryRow(ctx, `
		SELECT item_ref, total, available, reserved, updated_at
		FROM inventory_items
		WHERE item_ref = $1
	`, itemRef).Scan(&item.ItemRef, &item.Total, &item.Available, &item.Reserved, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to get inventory item %s: %w", itemRef, err)
	}
	return item, nil
}

const reservationQuery = `
	SELECT id, booking_id, item_ref, quantity, status,
	       expires_at, created_at, confirmed_at, released_at
	FROM inventory_reservations`

// GetReservationByBooking reads the reservation for a booking.
func (r *PostgresInventoryRepository) GetReservationByBooking(ctx context.Context, bookingID string) (*domain.InventoryReservation, error) {
	return scanReservation(r.pool.QueryRow(ctx, reservationQuery+` WHERE booking_id = $1`, bookingID))
}

// ExpiredReservations lists RESERVED holds past their expiry.
func (r *PostgresInventoryRepository) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*domain.InventoryReservation, error) {
	rows, err := r.pool.Query(ctx, reservationQuery+`
		WHERE status = 'RESERVED' AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired reservations: %w", err)
	}
	defer rows.Close()

	var out []*domain.InventoryReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reservations: %w", err)
	}
	return out, nil
}

func scanReservation(row pgx.Row) (*domain.InventoryReservation, error) {
	res := &domain.InventoryReservation{}
	var status string
	err := row.Scan(
		&res.ID,
		&res.BookingID,
		&res.ItemRef,
		&res.Quantity,
		&status,
		&res.ExpiresAt,
		&res.CreatedAt,
		&res.ConfirmedAt,
		&res.ReleasedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}
	res.Status = domain.ReservationStatus(status)
	return res, nil
}

var _ InventoryRepository = (*PostgresInventoryRepository)(nil)
