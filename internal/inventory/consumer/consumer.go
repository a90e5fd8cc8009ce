// Package consumer wires the inventory service's event subscriptions onto
// the idempotent consumer runtime.
package consumer

import (
	"context"
	"fmt"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/consumer"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
)

// Consumer subscribes the inventory service's handlers.
type Consumer struct {
	runtime *consumer.Runtime
	svc     *service.InventoryService
}

// New creates the inventory Consumer.
func New(runtime *consumer.Runtime, svc *service.InventoryService) *Consumer {
	return &Consumer{runtime: runtime, svc: svc}
}

// Start subscribes every inventory-side event reaction. The payment streams
// are shared with the booking service, so those queues carry an _inventory
// suffix; booking_created has this service as its primary consumer.
func (c *Consumer) Start(ctx context.Context) error {
	subs := []struct {
		stream  string
		queue   string
		handler consumer.Handler
	}{
		{event.StreamBookingCreated, event.StreamBookingCreated, consumer.Handler{
			Name:   "inventory.booking_created",
			Key:    bookingCreatedKey,
			Handle: c.onBookingCreated,
		}},
		{event.StreamPaymentSucceeded, event.StreamPaymentSucceeded + "_inventory", consumer.Handler{
			Name:   "inventory.payment_succeeded",
			Key:    paymentSucceededKey,
			Handle: c.onPaymentSucceeded,
		}},
		{event.StreamPaymentFailed, event.StreamPaymentFailed + "_inventory", consumer.Handler{
			Name:   "inventory.payment_failed",
			Key:    paymentFailedKey,
			Handle: c.onPaymentFailed,
		}},
	}

	for _, sub := range subs {
		if err := c.runtime.Subscribe(ctx, sub.stream, sub.queue, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", sub.handler.Name, err)
		}
	}
	return nil
}

func (c *Consumer) onBookingCreated(ctx context.Context, env *event.Envelope) error {
	var p event.BookingCreatedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return c.svc.Reserve(ctx, p)
}

func (c *Consumer) onPaymentSucceeded(ctx context.Context, env *event.Envelope) error {
	var p event.PaymentSucceededPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return c.svc.ConfirmReservation(ctx, p.BookingID)
}

func (c *Consumer) onPaymentFailed(ctx context.Context, env *event.Envelope) error {
	var p event.PaymentFailedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	// Only the final failure compensates; earlier attempts still retry.
	if !p.Final {
		return nil
	}
	return c.svc.ReleaseReservation(ctx, p.BookingID, "payment_failed")
}

func bookingCreatedKey(env *event.Envelope) (string, error) {
	var p event.BookingCreatedPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	return p.BookingID + ":RESERVE", nil
}

func paymentSucceededKey(env *event.Envelope) (string, error) {
	var p event.PaymentSucceededPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	return p.BookingID + ":CONFIRM_RES", nil
}

// paymentFailedKey includes the attempt count: a non-final failure must not
// suppress the later final one.
func paymentFailedKey(env *event.Envelope) (string, error) {
	var p event.PaymentFailedPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:RELEASE_RES:%d", p.BookingID, p.AttemptCount), nil
}
