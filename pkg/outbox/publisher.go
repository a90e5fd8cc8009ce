package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/broker"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/retry"
)

// PublisherConfig contains the publisher's knobs.
type PublisherConfig struct {
	// PollInterval is the sleep between drain passes.
	PollInterval time.Duration
	// BatchSize bounds rows claimed per pass.
	BatchSize int
	// Backoff shapes the per-row retry schedule. After MaxRetries the
	// interval stays at the cap; rows are never dropped.
	Backoff *retry.Config
}

// DefaultPublisherConfig returns the defaults: 1s poll, batch of 10,
// exponential backoff 2s..60s.
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: time.Second,
		BatchSize:    10,
		Backoff:      retry.DefaultConfig(),
	}
}

// Publisher drains the outbox to the broker in the background.
type Publisher struct {
	store  Store
	broker broker.Broker
	config *PublisherConfig
	log    *logger.Logger

	retrier *retry.Retrier

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewPublisher creates a Publisher.
func NewPublisher(store Store, b broker.Broker, config *PublisherConfig, log *logger.Logger) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	if log == nil {
		log = logger.Get()
	}

	return &Publisher{
		store:   store,
		broker:  b,
		config:  config,
		log:     log.Named("outbox"),
		retrier: retry.New(config.Backoff),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the drain loop.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("outbox publisher already running")
	}
	p.running = true
	p.mu.Unlock()

	p.log.Info("starting outbox publisher",
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("batch_size", p.config.BatchSize),
	)

	p.wg.Add(1)
	go p.loop(ctx)
	return nil
}

// Stop halts the loop and waits for the in-flight pass to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()
	p.log.Info("outbox publisher stopped")
}

// Wake nudges the loop ahead of the next poll tick. Repositories call it
// right after committing new rows to cut publish latency.
func (p *Publisher) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.drain(ctx)
		case <-p.wake:
			p.drain(ctx)
		}
	}
}

// drain runs batches until the store has nothing due.
func (p *Publisher) drain(ctx context.Context) {
	for {
		published, err := p.store.DrainBatch(ctx, DrainRequest{
			Limit:   p.config.BatchSize,
			Now:     time.Now().UTC(),
			Publish: p.publish,
			Backoff: p.retrier.Interval,
		})
		if err != nil {
			p.log.Error("outbox drain failed", zap.Error(err))
			return
		}
		if published == 0 {
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context, msg *Message) error {
	stream := event.StreamFor(msg.EventType)
	if stream == "" {
		// Unknown event type in the outbox is a programming error; keep
		// the row and scream.
		p.log.Error("outbox message has unknown event type",
			zap.String("message_id", msg.ID),
			zap.String("event_type", msg.EventType),
		)
		return fmt.Errorf("no stream for event type %s", msg.EventType)
	}

	err := p.broker.Publish(ctx, stream, msg.Payload, map[string]string{
		"event_type":     msg.EventType,
		"correlation_id": msg.CorrelationID,
	})
	if err != nil {
		p.log.Warn("outbox publish failed",
			zap.String("message_id", msg.ID),
			zap.String("event_type", msg.EventType),
			zap.String("correlation_id", msg.CorrelationID),
			zap.Int("attempts", msg.PublishAttempts+1),
			zap.Error(err),
		)
		return err
	}
	return nil
}
