// Package consumer wires the payment service's event subscriptions onto the
// idempotent consumer runtime.
package consumer

import (
	"context"
	"fmt"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/consumer"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
)

// Consumer subscribes the payment service's handlers.
type Consumer struct {
	runtime *consumer.Runtime
	svc     *service.PaymentService
}

// New creates the payment Consumer.
func New(runtime *consumer.Runtime, svc *service.PaymentService) *Consumer {
	return &Consumer{runtime: runtime, svc: svc}
}

// Start subscribes every payment-side event reaction. Queue names are the
// stable stream names; this service is their primary consumer.
func (c *Consumer) Start(ctx context.Context) error {
	subs := []struct {
		stream  string
		handler consumer.Handler
	}{
		{event.StreamInventoryReserved, consumer.Handler{
			Name:   "payment.inventory_reserved",
			Key:    inventoryReservedKey,
			Handle: c.onInventoryReserved,
		}},
		{event.StreamRetryPayment, consumer.Handler{
			Name:   "payment.retry_payment",
			Key:    retryPaymentKey,
			Handle: c.onRetryPayment,
		}},
	}

	for _, sub := range subs {
		if err := c.runtime.Subscribe(ctx, sub.stream, sub.stream, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", sub.handler.Name, err)
		}
	}
	return nil
}

func (c *Consumer) onInventoryReserved(ctx context.Context, env *event.Envelope) error {
	var p event.InventoryReservedPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return c.svc.HandleInventoryReserved(ctx, p)
}

func (c *Consumer) onRetryPayment(ctx context.Context, env *event.Envelope) error {
	var p event.RetryPaymentPayload
	if err := env.DecodePayload(&p); err != nil {
		return err
	}
	return c.svc.HandleRetryPayment(ctx, p)
}

// Idempotency keys include the attempt number so a genuine retry is never
// suppressed as a duplicate, while duplicates of the same attempt are.

func inventoryReservedKey(env *event.Envelope) (string, error) {
	var p event.InventoryReservedPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	return p.BookingID + ":ATTEMPT_1", nil
}

// retryPaymentKey names the attempt this event triggers, one past the
// attempt that failed. Operator-initiated retries carry Attempt 0 and no
// attempt history, so each request is keyed by its event id; the service
// dedupes at the payment row instead.
func retryPaymentKey(env *event.Envelope) (string, error) {
	var p event.RetryPaymentPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", err
	}
	if p.Attempt == 0 {
		return fmt.Sprintf("%s:OPERATOR_RETRY:%s", p.BookingID, env.EventID), nil
	}
	return fmt.Sprintf("%s:ATTEMPT_%d", p.BookingID, p.Attempt+1), nil
}
