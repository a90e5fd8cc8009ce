// Package consumer implements the idempotent consumer runtime shared by all
// services. It wraps domain handlers with envelope decoding, idempotency
// ledger checks and outcome-driven acknowledgment: success acks, transient
// failures requeue a bounded number of times before dead-lettering, and
// permanent failures dead-letter immediately.
package consumer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/broker"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/faults"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
)

// Config contains runtime knobs shared by all subscriptions of a service.
type Config struct {
	// MaxRequeue bounds transient redeliveries before dead-lettering.
	MaxRequeue int
	// HandlerTimeout is the soft per-delivery deadline; exceeding it is a
	// transient failure.
	HandlerTimeout time.Duration
	// Prefetch bounds in-flight deliveries per subscription.
	Prefetch int
}

// DefaultConfig returns the defaults: 3 requeues, 60s handler timeout,
// prefetch 10.
func DefaultConfig() *Config {
	return &Config{
		MaxRequeue:     3,
		HandlerTimeout: 60 * time.Second,
		Prefetch:       broker.DefaultPrefetch,
	}
}

// HandlerFunc processes one decoded envelope inside its own transaction.
// Return nil on success; wrap failures with pkg/faults to steer disposition.
// An untagged error is treated as transient.
type HandlerFunc func(ctx context.Context, env *event.Envelope) error

// KeyFunc derives the idempotency key for an envelope. Preferred keys are
// (domain key, target transition) pairs, which survive event-id churn on
// republish; return faults.Permanent on a payload the key cannot be read
// from.
type KeyFunc func(env *event.Envelope) (string, error)

// EventIDKey is the fallback KeyFunc for handlers with no natural domain
// key.
func EventIDKey(env *event.Envelope) (string, error) {
	return env.EventID, nil
}

// Handler is one subscription's handler with its idempotency key derivation.
type Handler struct {
	// Name identifies the handler in logs.
	Name string
	// Key derives the idempotency key; nil means EventIDKey.
	Key KeyFunc
	// Handle does the work.
	Handle HandlerFunc
}

// Runtime subscribes handlers on the broker with idempotent delivery
// semantics.
type Runtime struct {
	broker broker.Broker
	ledger Ledger
	config *Config
	log    *logger.Logger
}

// New creates a Runtime.
func New(b broker.Broker, ledger Ledger, config *Config, log *logger.Logger) *Runtime {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Get()
	}
	return &Runtime{
		broker: b,
		ledger: ledger,
		config: config,
		log:    log.Named("consumer"),
	}
}

// Subscribe binds queue to stream and runs h for each delivery under the
// idempotency protocol.
func (r *Runtime) Subscribe(ctx context.Context, stream, queue string, h Handler) error {
	if h.Key == nil {
		h.Key = EventIDKey
	}

	log := r.log.With(
		zap.String("handler", h.Name),
		zap.String("queue", queue),
	)
	log.Info("subscribing", zap.String("stream", stream))

	return r.broker.Subscribe(ctx, stream, queue, r.config.Prefetch, func(ctx context.Context, d *broker.Delivery) {
		r.process(ctx, d, h, log)
	})
}

func (r *Runtime) process(ctx context.Context, d *broker.Delivery, h Handler, log *logger.Logger) {
	env, err := event.Decode(d.Body)
	if err != nil {
		// A malformed body will never decode on redelivery.
		log.Error("failed to decode delivery, dead-lettering", zap.Error(err))
		r.nackDLQ(d, log)
		return
	}

	ctx = env.Context(ctx)
	log = log.With(
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		correlation.Field(ctx),
	)

	key, err := h.Key(env)
	if err != nil {
		log.Error("failed to derive idempotency key, dead-lettering", zap.Error(err))
		r.nackDLQ(d, log)
		return
	}

	state, err := r.ledger.Begin(ctx, key)
	if err != nil {
		log.Warn("ledger unavailable, requeueing", zap.Error(err))
		r.requeueOrDLQ(ctx, d, env, log)
		return
	}

	switch state {
	case StateCompleted:
		log.Debug("duplicate delivery, acking", zap.String("idempotency_key", key))
		r.ack(d, log)
		return
	case StateInProgress:
		// Usually a concurrent worker that will finish shortly, but a
		// crashed one leaves the claim behind until the ledger lease
		// reclaims it. The redelivery budget applies either way so the
		// message cannot spin forever.
		log.Debug("key in progress elsewhere, requeueing", zap.String("idempotency_key", key))
		r.requeueOrDLQ(ctx, d, env, log)
		return
	}

	// Soft deadline: a handler stuck on I/O sees its context expire, the
	// resulting error classifies as transient.
	hctx, cancel := context.WithTimeout(ctx, r.config.HandlerTimeout)
	err = h.Handle(hctx, env)
	cancel()

	if err == nil {
		if cerr := r.ledger.Complete(ctx, key); cerr != nil {
			// The handler committed but the ledger did not: requeue and let
			// the handler's own idempotency absorb the redelivery.
			log.Warn("failed to mark ledger completed, requeueing", zap.Error(cerr))
			r.requeueOrDLQ(ctx, d, env, log)
			return
		}
		r.ack(d, log)
		return
	}

	switch faults.ClassOf(err) {
	case faults.ClassBusiness:
		// A legitimate negative outcome. The handler has already emitted
		// the corresponding domain event; the delivery is done.
		log.Warn("handler reported business outcome", zap.Error(err))
		if cerr := r.ledger.Complete(ctx, key); cerr != nil {
			log.Warn("failed to mark ledger completed, requeueing", zap.Error(cerr))
			r.requeueOrDLQ(ctx, d, env, log)
			return
		}
		r.ack(d, log)

	case faults.ClassPermanent:
		log.Error("handler failed permanently, dead-lettering", zap.Error(err))
		r.clear(ctx, key, log)
		r.nackDLQ(d, log)

	default:
		log.Warn("handler failed transiently", zap.Error(err))
		r.clear(ctx, key, log)
		r.requeueOrDLQ(ctx, d, env, log)
	}
}

// requeueOrDLQ requeues a transiently failed delivery until the redelivery
// budget runs out, then dead-letters it.
func (r *Runtime) requeueOrDLQ(ctx context.Context, d *broker.Delivery, env *event.Envelope, log *logger.Logger) {
	deliveries := d.DeliveryCount()
	if deliveries == 0 {
		n, err := r.ledger.RecordDelivery(ctx, env.EventID)
		if err != nil {
			// No counter at all: requeue, the budget catches up later.
			log.Warn("failed to count delivery, requeueing", zap.Error(err))
			r.nackRequeue(d, log)
			return
		}
		deliveries = n
	}

	// The first delivery is not a redelivery.
	if deliveries-1 < r.config.MaxRequeue {
		r.nackRequeue(d, log)
		return
	}

	log.Error("redelivery budget exhausted, dead-lettering",
		zap.Int("deliveries", deliveries),
		zap.Int("max_requeue", r.config.MaxRequeue),
		zap.String("dlq", broker.DLQName(d.Queue)),
	)
	r.nackDLQ(d, log)
}

func (r *Runtime) clear(ctx context.Context, key string, log *logger.Logger) {
	if err := r.ledger.Clear(ctx, key); err != nil {
		log.Warn("failed to clear idempotency key", zap.String("idempotency_key", key), zap.Error(err))
	}
}

func (r *Runtime) ack(d *broker.Delivery, log *logger.Logger) {
	if err := d.Ack(); err != nil && !errors.Is(err, broker.ErrClosed) {
		log.Warn("failed to ack delivery", zap.Error(err))
	}
}

func (r *Runtime) nackRequeue(d *broker.Delivery, log *logger.Logger) {
	if err := d.Nack(true); err != nil && !errors.Is(err, broker.ErrClosed) {
		log.Warn("failed to nack delivery", zap.Error(err))
	}
}

func (r *Runtime) nackDLQ(d *broker.Delivery, log *logger.Logger) {
	if err := d.Nack(false); err != nil && !errors.Is(err, broker.ErrClosed) {
		log.Warn("failed to dead-letter delivery", zap.Error(err))
	}
}
