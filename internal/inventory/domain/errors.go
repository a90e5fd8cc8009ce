package domain

import "errors"

// Domain errors
var (
	ErrItemNotFound         = errors.New("inventory item not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrNegativeStock        = errors.New("stock count would go negative")
	ErrStockOverflow        = errors.New("available plus reserved exceeds total")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationNotActive = errors.New("reservation is not active")
)
