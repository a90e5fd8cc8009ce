package domain

import "errors"

// Domain errors
var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrActivePaymentExists = errors.New("an active payment already exists for this booking")
	ErrAttemptNotPending   = errors.New("payment attempt is not pending")
	ErrInvalidBookingID    = errors.New("booking id is required")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidAttempt      = errors.New("attempt count must be at least 1")
)
