// Package outbox implements the transactional outbox: domain writes and the
// events they imply commit in one local transaction, and a background
// publisher drains the committed rows to the broker with at-least-once
// semantics.
package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
)

// Message is one pending outbound event. Payload is the encoded envelope.
type Message struct {
	ID              string     `json:"id"`
	EventType       string     `json:"event_type"`
	CorrelationID   string     `json:"correlation_id"`
	Payload         []byte     `json:"payload"`
	CreatedAt       time.Time  `json:"created_at"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
	PublishAttempts int        `json:"publish_attempts"`
	NextAttemptAt   time.Time  `json:"next_attempt_at"`
}

// NewMessage wraps an envelope as an outbox message ready for insertion.
func NewMessage(env *event.Envelope) (*Message, error) {
	payload, err := env.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode outbox payload: %w", err)
	}

	now := time.Now().UTC()
	return &Message{
		ID:            uuid.New().String(),
		EventType:     env.EventType,
		CorrelationID: env.CorrelationID,
		Payload:       payload,
		CreatedAt:     now,
		NextAttemptAt: now,
	}, nil
}

// NewMessages wraps several envelopes, preserving order. Order matters:
// rows sharing a correlation id are published in created_at order.
func NewMessages(envs ...*event.Envelope) ([]*Message, error) {
	msgs := make([]*Message, 0, len(envs))
	for i, env := range envs {
		msg, err := NewMessage(env)
		if err != nil {
			return nil, err
		}
		// Force a strict created_at order even within one clock tick.
		msg.CreatedAt = msg.CreatedAt.Add(time.Duration(i) * time.Microsecond)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// IsPublished reports whether the message was confirmed by the broker.
func (m *Message) IsPublished() bool {
	return m.PublishedAt != nil
}

// MarkPublished stamps the broker confirmation time.
func (m *Message) MarkPublished(at time.Time) {
	t := at.UTC()
	m.PublishedAt = &t
}

// MarkAttemptFailed records a failed publish attempt and schedules the next
// one. Messages are never dropped: attempts keep growing and the backoff
// caller caps the interval.
func (m *Message) MarkAttemptFailed(next time.Time) {
	m.PublishAttempts++
	m.NextAttemptAt = next.UTC()
}
