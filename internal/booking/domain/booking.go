// Package domain holds the booking entity and its state machine.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus represents the status of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// IsValid checks if the status is a valid BookingStatus.
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus.
func (s BookingStatus) String() string {
	return string(s)
}

// Booking represents a booking. Version backs optimistic concurrency: every
// update compares and increments it.
type Booking struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"user_id"`
	ItemRef            string          `json:"item_ref"`
	Quantity           int             `json:"quantity"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             BookingStatus   `json:"status"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	Version            int64           `json:"version"`
}

// NewBooking creates a PENDING booking.
func NewBooking(userID, itemRef string, quantity int, amount decimal.Decimal, currency string) *Booking {
	return &Booking{
		ID:        uuid.New().String(),
		UserID:    userID,
		ItemRef:   itemRef,
		Quantity:  quantity,
		Amount:    amount,
		Currency:  currency,
		Status:    BookingStatusPending,
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
}

// Validate validates the booking fields.
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(b.ItemRef) == "" {
		return ErrInvalidItemRef
	}
	if b.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if b.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if !b.Status.IsValid() {
		return ErrInvalidBookingStatus
	}
	return nil
}

// IsPending checks if the booking is still in flight.
func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// IsTerminal checks if the booking reached CONFIRMED or CANCELLED. Terminal
// bookings never transition again.
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusConfirmed || b.Status == BookingStatusCancelled
}

// Confirm transitions PENDING to CONFIRMED.
func (b *Booking) Confirm(at time.Time) error {
	switch b.Status {
	case BookingStatusConfirmed:
		return ErrAlreadyConfirmed
	case BookingStatusCancelled:
		return ErrAlreadyCancelled
	}
	t := at.UTC()
	b.Status = BookingStatusConfirmed
	b.ConfirmedAt = &t
	return nil
}

// Cancel transitions PENDING to CANCELLED with a human-readable reason.
func (b *Booking) Cancel(reason string, at time.Time) error {
	switch b.Status {
	case BookingStatusConfirmed:
		return ErrAlreadyConfirmed
	case BookingStatusCancelled:
		return ErrAlreadyCancelled
	}
	t := at.UTC()
	b.Status = BookingStatusCancelled
	b.CancellationReason = reason
	b.CancelledAt = &t
	return nil
}
