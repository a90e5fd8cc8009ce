package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event type names. These are stable wire identifiers shared by all three
// services; do not rename.
const (
	TypeBookingCreated             = "BookingCreated"
	TypeBookingCancelled           = "BookingCancelled"
	TypeInventoryReserved          = "InventoryReserved"
	TypeInventoryReservationFailed = "InventoryReservationFailed"
	TypeInventoryReleased          = "InventoryReleased"
	TypePaymentSucceeded           = "PaymentSucceeded"
	TypePaymentFailed              = "PaymentFailed"
	TypeRetryPayment               = "RetryPayment"
	TypeRefundRequested            = "RefundRequested"
)

// Stream names (RabbitMQ exchange names, one per event type). Also stable.
const (
	StreamBookingCreated             = "booking_created"
	StreamBookingCancelled           = "bookingcancelled"
	StreamInventoryReserved          = "inventory_reserved"
	StreamInventoryReservationFailed = "inventory_reservation_failed"
	StreamInventoryReleased          = "inventory_released"
	StreamPaymentSucceeded           = "payment_succeeded"
	StreamPaymentFailed              = "payment_failed"
	StreamRetryPayment               = "retry_payment"
	StreamRefundRequested            = "refund_requested"
)

var streamByType = map[string]string{
	TypeBookingCreated:             StreamBookingCreated,
	TypeBookingCancelled:           StreamBookingCancelled,
	TypeInventoryReserved:          StreamInventoryReserved,
	TypeInventoryReservationFailed: StreamInventoryReservationFailed,
	TypeInventoryReleased:          StreamInventoryReleased,
	TypePaymentSucceeded:           StreamPaymentSucceeded,
	TypePaymentFailed:              StreamPaymentFailed,
	TypeRetryPayment:               StreamRetryPayment,
	TypeRefundRequested:            StreamRefundRequested,
}

// StreamFor returns the stream an event type is published on. Unknown types
// return an empty string; the outbox publisher treats that as a permanent
// error.
func StreamFor(eventType string) string {
	return streamByType[eventType]
}

// BookingCreatedPayload is emitted by the booking service when a booking is
// accepted and persisted as PENDING.
type BookingCreatedPayload struct {
	BookingID string          `json:"booking_id"`
	UserID    string          `json:"user_id"`
	ItemRef   string          `json:"item_ref"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// BookingCancelledPayload is emitted when a booking reaches CANCELLED.
type BookingCancelledPayload struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

// InventoryReservedPayload is emitted by the inventory service after stock
// was put on hold for a booking. Amount and currency are carried through so
// the payment service does not need a synchronous lookup.
type InventoryReservedPayload struct {
	BookingID     string          `json:"booking_id"`
	ReservationID string          `json:"reservation_id"`
	ItemRef       string          `json:"item_ref"`
	Quantity      int             `json:"quantity"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// InventoryReservationFailedPayload is the business-negative outcome of a
// reservation attempt.
type InventoryReservationFailedPayload struct {
	BookingID string `json:"booking_id"`
	ItemRef   string `json:"item_ref"`
	Reason    string `json:"reason"`
}

// InventoryReleasedPayload is emitted when held stock returns to the
// available pool (payment failure or reservation expiry).
type InventoryReleasedPayload struct {
	BookingID string `json:"booking_id"`
	ItemRef   string `json:"item_ref"`
	Quantity  int    `json:"quantity"`
}

// PaymentSucceededPayload is the terminal success outcome of the payment leg.
type PaymentSucceededPayload struct {
	BookingID     string `json:"booking_id"`
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
}

// PaymentFailedPayload reports a failed payment attempt. Final is true only
// when the attempt budget is exhausted; consumers must not compensate on
// non-final failures.
type PaymentFailedPayload struct {
	BookingID    string `json:"booking_id"`
	PaymentID    string `json:"payment_id"`
	Reason       string `json:"reason"`
	AttemptCount int    `json:"attempt_count"`
	Final        bool   `json:"final"`
}

// RetryPaymentPayload schedules the next payment attempt. RetryAt is the
// earliest time the attempt may run.
type RetryPaymentPayload struct {
	BookingID string          `json:"booking_id"`
	ItemRef   string          `json:"item_ref"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Attempt   int             `json:"attempt"`
	RetryAt   time.Time       `json:"retry_at"`
}

// RefundRequestedPayload is emitted by the booking service when a
// PaymentSucceeded arrives for a booking that was already cancelled. The
// refund machinery itself lives outside the saga core.
type RefundRequestedPayload struct {
	BookingID string `json:"booking_id"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}
