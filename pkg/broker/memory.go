package broker

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker used by tests. It mimics the AMQP
// topology (fanout streams, per-subscriber queues, DLQs, redelivery on nack)
// and can inject duplicate deliveries to exercise idempotency.
type MemoryBroker struct {
	mu       sync.Mutex
	bindings map[string][]string     // stream -> queues
	queues   map[string]*memoryQueue // queue name -> queue
	dlq      map[string][][]byte     // queue name -> dead-lettered bodies

	// duplicates[stream] makes every publish on the stream enqueue n extra
	// copies of the message, simulating broker redelivery.
	duplicates map[string]int

	delivered map[string]int // queue -> delivery count (incl. redeliveries)

	closed bool
	wg     sync.WaitGroup
}

type memoryQueue struct {
	name string
	ch   chan *memoryMessage
}

type memoryMessage struct {
	body     []byte
	headers  map[string]interface{}
	attempts int
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		bindings:   make(map[string][]string),
		queues:     make(map[string]*memoryQueue),
		dlq:        make(map[string][][]byte),
		duplicates: make(map[string]int),
		delivered:  make(map[string]int),
	}
}

// Publish fans the message out to every queue bound to the stream. A stream
// with no subscribers drops the message, matching a fanout exchange with no
// bindings.
func (b *MemoryBroker) Publish(ctx context.Context, stream string, body []byte, headers map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	copies := 1 + b.duplicates[stream]
	h := make(map[string]interface{}, len(headers))
	for k, v := range headers {
		h[k] = v
	}

	for _, queue := range b.bindings[stream] {
		q := b.queues[queue]
		for i := 0; i < copies; i++ {
			bodyCopy := make([]byte, len(body))
			copy(bodyCopy, body)
			select {
			case q.ch <- &memoryMessage{body: bodyCopy, headers: h}:
			default:
				// Queue full: memory broker queues are sized for tests.
				return ErrBrokerUnavailable
			}
		}
	}
	return nil
}

// Subscribe binds queue to stream and starts a dispatcher goroutine.
func (b *MemoryBroker) Subscribe(ctx context.Context, stream, queue string, prefetch int, fn Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}

	q, ok := b.queues[queue]
	if !ok {
		q = &memoryQueue{name: queue, ch: make(chan *memoryMessage, 1024)}
		b.queues[queue] = q
	}
	b.bindings[stream] = append(b.bindings[stream], queue)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-q.ch:
				b.dispatch(ctx, q, msg, fn)
			}
		}
	}()
	return nil
}

func (b *MemoryBroker) dispatch(ctx context.Context, q *memoryQueue, msg *memoryMessage, fn Handler) {
	msg.attempts++

	b.mu.Lock()
	b.delivered[q.name]++
	b.mu.Unlock()

	d := &Delivery{
		Body:          msg.body,
		Headers:       msg.headers,
		Queue:         q.name,
		Redelivered:   msg.attempts > 1,
		deliveryCount: msg.attempts,
		ack:           func() error { return nil },
		nack: func(requeue bool) error {
			if requeue {
				// Small delay keeps nack-requeue loops from spinning.
				go func() {
					time.Sleep(time.Millisecond)
					select {
					case q.ch <- msg:
					case <-ctx.Done():
					}
				}()
				return nil
			}
			b.mu.Lock()
			b.dlq[q.name] = append(b.dlq[q.name], msg.body)
			b.mu.Unlock()
			return nil
		},
	}

	fn(ctx, d)
}

// Close shuts the broker down. Pending messages are discarded.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// InjectDuplicates makes every subsequent publish on the stream deliver n
// extra copies of each message.
func (b *MemoryBroker) InjectDuplicates(stream string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.duplicates[stream] = n
}

// DLQ returns the bodies dead-lettered from the given queue.
func (b *MemoryBroker) DLQ(queue string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.dlq[queue]))
	copy(out, b.dlq[queue])
	return out
}

// Delivered returns the number of deliveries (including redeliveries) made
// from the given queue.
func (b *MemoryBroker) Delivered(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delivered[queue]
}

var _ Broker = (*MemoryBroker)(nil)
var _ Broker = (*AMQPBroker)(nil)
