package domain

import "errors"

// Domain errors
var (
	ErrBookingNotFound      = errors.New("booking not found")
	ErrAlreadyConfirmed     = errors.New("booking already confirmed")
	ErrAlreadyCancelled     = errors.New("booking already cancelled")
	ErrNotPending           = errors.New("booking is not pending")
	ErrVersionConflict      = errors.New("booking version conflict")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidItemRef       = errors.New("invalid item ref")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
)
