// Package repository persists inventory items and reservations. All stock
// mutations run inside WithItemLock, which holds the item's row-exclusive
// lock for the duration of the callback; that lock is the sole mechanism
// preventing oversell.
package repository

import (
	"context"
	"time"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// Tx is the write surface available inside WithItemLock. Everything written
// through it, outbox messages included, commits atomically with the item
// update when the callback returns nil.
type Tx interface {
	// UpdateItem writes the locked item's counters.
	UpdateItem(ctx context.Context, item *domain.InventoryItem) error

	// InsertReservation inserts a new reservation.
	InsertReservation(ctx context.Context, res *domain.InventoryReservation) error

	// UpdateReservation writes a reservation's status fields.
	UpdateReservation(ctx context.Context, res *domain.InventoryReservation) error

	// GetReservationByBooking reads the reservation for a booking, or
	// domain.ErrReservationNotFound.
	GetReservationByBooking(ctx context.Context, bookingID string) (*domain.InventoryReservation, error)

	// AppendOutbox stages outbox messages for the commit.
	AppendOutbox(ctx context.Context, msgs ...*outbox.Message) error
}

// InventoryRepository stores items and reservations.
type InventoryRepository interface {
	// WithItemLock runs fn with the item row locked exclusively. fn's
	// writes commit together; any error rolls everything back.
	WithItemLock(ctx context.Context, itemRef string, fn func(ctx context.Context, tx Tx, item *domain.InventoryItem) error) error

	// UpsertItem creates or resets an item's stock. Operator and test
	// affordance.
	UpsertItem(ctx context.Context, item *domain.InventoryItem) error

	// GetItem reads an item without locking.
	GetItem(ctx context.Context, itemRef string) (*domain.InventoryItem, error)

	// GetReservationByBooking reads outside any lock.
	GetReservationByBooking(ctx context.Context, bookingID string) (*domain.InventoryReservation, error)

	// ExpiredReservations lists RESERVED holds past their expiry, oldest
	// first. The sweeper re-checks state under the item lock before
	// releasing.
	ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*domain.InventoryReservation, error)
}
