// Package domain holds the inventory item and reservation entities.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks the stock of one bookable resource. The conservation
// invariant: available + reserved never exceeds total, and every mutation
// happens under the item's row-exclusive lock.
type InventoryItem struct {
	ItemRef   string    `json:"item_ref"`
	Total     int       `json:"total"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewInventoryItem creates an item with all stock available.
func NewInventoryItem(itemRef string, total int) *InventoryItem {
	return &InventoryItem{
		ItemRef:   itemRef,
		Total:     total,
		Available: total,
		UpdatedAt: time.Now().UTC(),
	}
}

// CheckInvariant verifies the conservation invariant.
func (i *InventoryItem) CheckInvariant() error {
	if i.Available < 0 || i.Reserved < 0 {
		return ErrNegativeStock
	}
	if i.Available+i.Reserved > i.Total {
		return ErrStockOverflow
	}
	return nil
}

// Hold moves qty from available to reserved.
func (i *InventoryItem) Hold(qty int) error {
	if i.Available < qty {
		return ErrInsufficientStock
	}
	i.Available -= qty
	i.Reserved += qty
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Consume permanently removes qty from the reserved pool (payment landed;
// stock does not return to available).
func (i *InventoryItem) Consume(qty int) error {
	if i.Reserved < qty {
		return ErrNegativeStock
	}
	i.Reserved -= qty
	i.Total -= qty
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Release returns qty from reserved back to available.
func (i *InventoryItem) Release(qty int) error {
	if i.Reserved < qty {
		return ErrNegativeStock
	}
	i.Reserved -= qty
	i.Available += qty
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// ReservationStatus represents the status of a reservation.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
)

// String returns the string representation of ReservationStatus.
func (s ReservationStatus) String() string {
	return string(s)
}

// InventoryReservation is a hold on stock for one booking.
type InventoryReservation struct {
	ID          string            `json:"id"`
	BookingID   string            `json:"booking_id"`
	ItemRef     string            `json:"item_ref"`
	Quantity    int               `json:"quantity"`
	Status      ReservationStatus `json:"status"`
	ExpiresAt   time.Time         `json:"expires_at"`
	CreatedAt   time.Time         `json:"created_at"`
	ConfirmedAt *time.Time        `json:"confirmed_at,omitempty"`
	ReleasedAt  *time.Time        `json:"released_at,omitempty"`
}

// NewReservation creates a RESERVED hold with the given TTL.
func NewReservation(bookingID, itemRef string, qty int, ttl time.Duration) *InventoryReservation {
	now := time.Now().UTC()
	return &InventoryReservation{
		ID:        uuid.New().String(),
		BookingID: bookingID,
		ItemRef:   itemRef,
		Quantity:  qty,
		Status:    ReservationStatusReserved,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsActive checks if the reservation still holds stock.
func (r *InventoryReservation) IsActive() bool {
	return r.Status == ReservationStatusReserved
}

// Confirm marks the hold consumed.
func (r *InventoryReservation) Confirm(at time.Time) error {
	if r.Status != ReservationStatusReserved {
		return ErrReservationNotActive
	}
	t := at.UTC()
	r.Status = ReservationStatusConfirmed
	r.ConfirmedAt = &t
	return nil
}

// Release returns the hold to the pool.
func (r *InventoryReservation) Release(at time.Time) error {
	if r.Status != ReservationStatusReserved {
		return ErrReservationNotActive
	}
	t := at.UTC()
	r.Status = ReservationStatusReleased
	r.ReleasedAt = &t
	return nil
}
