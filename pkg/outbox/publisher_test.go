package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/broker"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/retry"
)

// flakyBroker fails the first failures publishes, then succeeds.
type flakyBroker struct {
	mu        sync.Mutex
	failures  int
	published []publishedMsg
}

type publishedMsg struct {
	stream  string
	body    []byte
	headers map[string]string
}

func (b *flakyBroker) Publish(ctx context.Context, stream string, body []byte, headers map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return broker.ErrBrokerUnavailable
	}
	b.published = append(b.published, publishedMsg{stream: stream, body: body, headers: headers})
	return nil
}

func (b *flakyBroker) Subscribe(ctx context.Context, stream, queue string, prefetch int, fn broker.Handler) error {
	return nil
}

func (b *flakyBroker) Close() error { return nil }

func (b *flakyBroker) publishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func appendEvent(t *testing.T, store Store, corr, eventType string) *Message {
	t.Helper()
	env, err := event.New(correlation.WithID(context.Background(), corr), eventType, struct{}{})
	require.NoError(t, err)
	msg, err := NewMessage(env)
	require.NoError(t, err)
	require.NoError(t, store.Append(context.Background(), msg))
	return msg
}

func testPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		Backoff: &retry.Config{
			MaxRetries:      5,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      2.0,
		},
	}
}

func TestPublisherDrainsAppendedMessages(t *testing.T) {
	store := NewMemoryStore()
	fb := &flakyBroker{}

	pub := NewPublisher(store, fb, testPublisherConfig(), logger.NewNop())
	store.OnAppend(pub.Wake)

	require.NoError(t, pub.Start(context.Background()))
	defer pub.Stop()

	appendEvent(t, store, "corr-1", event.TypeBookingCreated)
	appendEvent(t, store, "corr-1", event.TypeInventoryReserved)

	require.Eventually(t, func() bool {
		return fb.publishedCount() == 2
	}, 2*time.Second, 5*time.Millisecond)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.Equal(t, event.StreamBookingCreated, fb.published[0].stream)
	assert.Equal(t, event.StreamInventoryReserved, fb.published[1].stream)
	assert.Equal(t, event.TypeBookingCreated, fb.published[0].headers["event_type"])
	assert.Equal(t, "corr-1", fb.published[0].headers["correlation_id"])
}

func TestPublisherRetriesBrokerFailures(t *testing.T) {
	store := NewMemoryStore()
	fb := &flakyBroker{failures: 2}

	pub := NewPublisher(store, fb, testPublisherConfig(), logger.NewNop())
	store.OnAppend(pub.Wake)

	require.NoError(t, pub.Start(context.Background()))
	defer pub.Stop()

	appendEvent(t, store, "corr-2", event.TypePaymentSucceeded)

	require.Eventually(t, func() bool {
		return fb.publishedCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	msgs := store.All()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsPublished())
	assert.Equal(t, 2, msgs[0].PublishAttempts)
}

func TestPublisherRoutesToMemoryBrokerQueues(t *testing.T) {
	store := NewMemoryStore()
	mb := broker.NewMemoryBroker()
	defer mb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received [][]byte
	require.NoError(t, mb.Subscribe(ctx, event.StreamBookingCreated, event.StreamBookingCreated, broker.DefaultPrefetch,
		func(ctx context.Context, d *broker.Delivery) {
			mu.Lock()
			received = append(received, d.Body)
			mu.Unlock()
			d.Ack()
		}))

	pub := NewPublisher(store, mb, testPublisherConfig(), logger.NewNop())
	store.OnAppend(pub.Wake)
	require.NoError(t, pub.Start(ctx))
	defer pub.Stop()

	msg := appendEvent(t, store, "corr-3", event.TypeBookingCreated)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte(msg.Payload), received[0])
}

func TestPublisherRejectsUnknownEventType(t *testing.T) {
	store := NewMemoryStore()
	fb := &flakyBroker{}

	pub := NewPublisher(store, fb, testPublisherConfig(), logger.NewNop())

	msg := &Message{
		ID:        "m-1",
		EventType: "NoSuchEvent",
		Payload:   []byte(`{}`),
	}
	err := pub.publish(context.Background(), msg)
	require.Error(t, err)
	assert.Zero(t, fb.publishedCount())
}

func TestPublisherStartTwice(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher(store, &flakyBroker{}, testPublisherConfig(), logger.NewNop())

	require.NoError(t, pub.Start(context.Background()))
	assert.Error(t, pub.Start(context.Background()))
	pub.Stop()
}
