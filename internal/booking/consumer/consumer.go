// Package consumer wires the booking saga's event subscriptions onto the
// idempotent consumer runtime.
package consumer

import (
	"context"
	"fmt"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/consumer"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
)

// Consumer subscribes the booking service's handlers.
type Consumer struct {
	runtime *consumer.Runtime
	svc     *service.BookingService
}

// New creates the booking Consumer.
func New(runtime *consumer.Runtime, svc *service.BookingService) *Consumer {
	return &Consumer{runtime: runtime, svc: svc}
}

// Start subscribes every booking-side event reaction. Queue names are the
// stable stream names; this service is their primary consumer.
func (c *Consumer) Start(ctx context.Context) error {
	subs := []struct {
		stream  string
		handler consumer.Handler
	}{
		{event.StreamInventoryReservationFailed, consumer.Handler{
			Name:   "booking.reservation_failed",
			Key:    reservationFailedKey,
			Handle: c.onReservationFailed,
		}},
		{event.StreamPaymentSucceeded, consumer.Handler{
			Name:   "booking.payment_succeeded",
			Key:    paymentSucceededKey,
			Handle: c.onPaymentSucceeded,
		}},
		{event.StreamPaymentFailed, consumer.Handler{
			Name:   "booking.payment_failed",
			Key:    paymentFailedKey,
			Handle: c.onPaymentFailed,
		}},
	}

	for _, sub := range subs {
		if err := c.runtime.Subscribe(ctx, sub.stream, sub.stream, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", sub.handler.Name, err)
		}
	}
	return nil
}

func (c *Consumer) onReservationFailed(ctx context.Context, env *event.Envelope) error {
	var p event.InventoryReservationFailedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return c.svc.HandleReservationFailed(ctx, p)
}

func (c *Consumer) onPaymentSucceeded(ctx context.Context, env *event.Envelope) error {
	var p event.PaymentSucceededPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return c.svc.HandlePaymentSucceeded(ctx, p)
}

func (c *Consumer) onPaymentFailed(ctx context.Context, env *event.Envelope) error {
	var p event.PaymentFailedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return c.svc.HandlePaymentFailed(ctx, p)
}

// Idempotency keys are (domain key, target transition) pairs so they survive
// event-id churn when a crashed publisher re-emits.

func reservationFailedKey(env *event.Envelope) (string, error) {
	var p event.InventoryReservationFailedPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	return p.BookingID + ":CANCELLED_INV", nil
}

func paymentSucceededKey(env *event.Envelope) (string, error) {
	var p event.PaymentSucceededPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	return p.BookingID + ":CONFIRM", nil
}

// paymentFailedKey includes the attempt count: a non-final failure must not
// suppress the later final one.
func paymentFailedKey(env *event.Envelope) (string, error) {
	var p event.PaymentFailedPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:PAYMENT_FAILED:%d", p.BookingID, p.AttemptCount), nil
}
