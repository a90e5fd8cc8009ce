// Package broker abstracts the event broker. Streams are durable fanout
// exchanges named after event types; each subscriber owns a durable queue
// bound to the stream, with a dead-letter queue alongside it.
package broker

import (
	"context"
	"errors"
)

// Common errors
var (
	// ErrBrokerUnavailable is a transient connectivity failure; callers
	// retry with backoff.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrClosed is returned from operations on a closed broker.
	ErrClosed = errors.New("broker closed")
)

// DLQSuffix is appended to a queue name to form its dead-letter queue name.
const DLQSuffix = "_dlq"

// DefaultPrefetch bounds in-flight deliveries per consumer.
const DefaultPrefetch = 10

// Delivery is a single message handed to a subscriber. The subscriber must
// call exactly one of Ack or Nack; an unacked delivery becomes redeliverable
// when the consumer disconnects.
type Delivery struct {
	// Body is the raw message body (an encoded event envelope).
	Body []byte
	// Headers are the broker headers attached to the message.
	Headers map[string]interface{}
	// Queue is the queue this delivery came from.
	Queue string
	// Redelivered is true when the broker has delivered this message before.
	Redelivered bool

	ack           func() error
	nack          func(requeue bool) error
	deliveryCount int
}

// Ack acknowledges the delivery.
func (d *Delivery) Ack() error { return d.ack() }

// Nack rejects the delivery. With requeue the message returns to the queue;
// without it the message dead-letters into the queue's DLQ.
func (d *Delivery) Nack(requeue bool) error { return d.nack(requeue) }

// DeliveryCount returns the broker's delivery counter for this message, or 0
// when the broker does not expose one. The consumer runtime falls back to
// its ledger counter in that case.
func (d *Delivery) DeliveryCount() int { return d.deliveryCount }

// Handler consumes one delivery. It must ack or nack before returning.
type Handler func(ctx context.Context, d *Delivery)

// Broker publishes to and subscribes on event streams.
type Broker interface {
	// Publish delivers body to every queue bound to the stream with
	// persistent semantics, returning only after the broker confirmed
	// receipt. Connectivity failures wrap ErrBrokerUnavailable.
	Publish(ctx context.Context, stream string, body []byte, headers map[string]string) error

	// Subscribe binds queue to stream (declaring both, plus the queue's
	// DLQ) and starts delivering messages to fn with manual
	// acknowledgment and the given prefetch. Delivery stops when ctx is
	// done.
	Subscribe(ctx context.Context, stream, queue string, prefetch int, fn Handler) error

	// Close tears down the connection. In-flight unacked deliveries
	// become redeliverable.
	Close() error
}

// DLQName returns the dead-letter queue name for a queue.
func DLQName(queue string) string { return queue + DLQSuffix }
