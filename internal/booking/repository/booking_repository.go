// Package repository persists bookings together with their outbox rows.
package repository

import (
	"context"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// BookingRepository stores bookings. Writes that also pass outbox messages
// commit the booking row and the messages in one transaction.
type BookingRepository interface {
	// Create inserts a new booking and its outbox messages atomically.
	Create(ctx context.Context, booking *domain.Booking, msgs ...*outbox.Message) error

	// GetByID retrieves a booking by its ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// Update persists the booking with a compare-and-swap on Version and
	// commits the outbox messages in the same transaction. Returns
	// domain.ErrVersionConflict when another writer got there first; the
	// caller re-reads and retries.
	Update(ctx context.Context, booking *domain.Booking, msgs ...*outbox.Message) error
}
