// Package event defines the canonical wire envelope and the typed payloads
// of every event exchanged between the booking, inventory and payment
// services.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/faults"
)

// SchemaVersion is the current envelope schema version. Readers accept any
// version; fields they do not know stay untouched inside Payload.
const SchemaVersion = 1

// Envelope is the canonical representation of an event on the wire.
//
// Payload is kept as raw JSON so that a consumer which re-publishes an
// envelope it does not fully understand preserves every field bit-exactly.
type Envelope struct {
	EventID       string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Version       int             `json:"version"`
	Payload       json.RawMessage `json:"payload"`
}

// Envelope decode errors. All of them are permanent: a malformed envelope
// will never become well-formed on redelivery.
var (
	ErrEmptyBody       = errors.New("empty message body")
	ErrMissingEventID  = errors.New("envelope missing event_id")
	ErrMissingType     = errors.New("envelope missing event_type")
	ErrMissingOccurred = errors.New("envelope missing occurred_at")
)

// New builds an envelope for the given event type, marshalling payload and
// stamping a fresh event id. The correlation id is taken from the context.
func New(ctx context.Context, eventType string, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &Envelope{
		EventID:       uuid.New().String(),
		CorrelationID: correlation.FromContext(ctx),
		EventType:     eventType,
		OccurredAt:    time.Now().UTC(),
		Version:       SchemaVersion,
		Payload:       raw,
	}, nil
}

// Encode serializes the envelope for publishing.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope %s: %w", e.EventID, err)
	}
	return data, nil
}

// Decode parses an envelope from a message body. Any failure is a permanent
// fault: the consumer runtime routes it straight to the DLQ.
func Decode(body []byte) (*Envelope, error) {
	if len(body) == 0 {
		return nil, faults.Permanent(ErrEmptyBody)
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, faults.Permanent(fmt.Errorf("failed to decode envelope: %w", err))
	}

	if env.EventID == "" {
		return nil, faults.Permanent(ErrMissingEventID)
	}
	if env.EventType == "" {
		return nil, faults.Permanent(ErrMissingType)
	}
	if env.OccurredAt.IsZero() {
		return nil, faults.Permanent(ErrMissingOccurred)
	}

	return &env, nil
}

// DecodePayload unmarshals the payload into v. Missing required payload
// fields are the handler's concern; a syntactically broken payload is a
// permanent fault.
func (e *Envelope) DecodePayload(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return faults.Permanent(fmt.Errorf("failed to decode %s payload: %w", e.EventType, err))
	}
	return nil
}

// Context returns ctx with the envelope's correlation id attached, so the
// id follows the transaction through handler code and logging.
func (e *Envelope) Context(ctx context.Context) context.Context {
	if e.CorrelationID == "" {
		return ctx
	}
	return correlation.WithID(ctx, e.CorrelationID)
}
