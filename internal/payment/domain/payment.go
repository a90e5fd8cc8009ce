// Package domain holds the payment attempt entity.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// String returns the string representation of PaymentStatus.
func (s PaymentStatus) String() string {
	return string(s)
}

// Payment is one attempt to charge a booking. At most one non-FAILED payment
// exists per booking; a FAILED attempt may be followed by a new one up to the
// attempt budget.
type Payment struct {
	ID            string          `json:"id"`
	BookingID     string          `json:"booking_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        PaymentStatus   `json:"status"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transaction_id,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	AttemptCount  int             `json:"attempt_count"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewPayment creates a PENDING attempt.
func NewPayment(bookingID string, amount decimal.Decimal, currency, method string, attempt int) *Payment {
	now := time.Now().UTC()
	return &Payment{
		ID:           uuid.New().String(),
		BookingID:    bookingID,
		Amount:       amount,
		Currency:     currency,
		Status:       PaymentStatusPending,
		Method:       method,
		AttemptCount: attempt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Validate checks the payment fields.
func (p *Payment) Validate() error {
	if p.BookingID == "" {
		return ErrInvalidBookingID
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if p.AttemptCount < 1 {
		return ErrInvalidAttempt
	}
	return nil
}

// IsTerminal checks whether the attempt reached an outcome.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusFailed
}

// MarkSucceeded records the gateway's success outcome.
func (p *Payment) MarkSucceeded(transactionID string, at time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrAttemptNotPending
	}
	p.Status = PaymentStatusSuccess
	p.TransactionID = transactionID
	p.UpdatedAt = at.UTC()
	return nil
}

// MarkFailed records the gateway's failure outcome. Timeouts count as
// failures.
func (p *Payment) MarkFailed(reason string, at time.Time) error {
	if p.Status != PaymentStatusPending {
		return ErrAttemptNotPending
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.UpdatedAt = at.UTC()
	return nil
}
