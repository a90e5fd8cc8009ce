// Package repository persists payment attempts.
package repository

import (
	"context"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// PaymentRepository stores payment attempts. The at-most-one-active-payment
// invariant is enforced on insert: Create fails with
// domain.ErrActivePaymentExists when a non-FAILED payment for the booking
// already exists.
type PaymentRepository interface {
	// Create inserts a new PENDING attempt.
	Create(ctx context.Context, payment *domain.Payment) error

	// Update writes the attempt's outcome, co-committing the outbox
	// messages with it.
	Update(ctx context.Context, payment *domain.Payment, msgs ...*outbox.Message) error

	// LatestByBooking returns the booking's most recent attempt, or
	// domain.ErrPaymentNotFound.
	LatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
}
