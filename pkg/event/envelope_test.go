package event

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/faults"
)

func TestNew_StampsIdentityAndCorrelation(t *testing.T) {
	ctx := correlation.WithID(context.Background(), "corr-123")

	env, err := New(ctx, TypeBookingCreated, BookingCreatedPayload{
		BookingID: "b-1",
		UserID:    "u-1",
		ItemRef:   "ROOM-101",
		Quantity:  1,
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "corr-123", env.CorrelationID)
	assert.Equal(t, TypeBookingCreated, env.EventType)
	assert.Equal(t, SchemaVersion, env.Version)
	assert.False(t, env.OccurredAt.IsZero())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ctx := correlation.WithID(context.Background(), "corr-rt")
	env, err := New(ctx, TypePaymentFailed, PaymentFailedPayload{
		BookingID:    "b-2",
		PaymentID:    "p-2",
		Reason:       "card_declined",
		AttemptCount: 2,
		Final:        false,
	})
	require.NoError(t, err)

	body, err := env.Encode()
	require.NoError(t, err)

	decoded, err := Decode(body)
	require.NoError(t, err)

	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.CorrelationID, decoded.CorrelationID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.True(t, env.OccurredAt.Equal(decoded.OccurredAt))

	var payload PaymentFailedPayload
	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, "card_declined", payload.Reason)
	assert.Equal(t, 2, payload.AttemptCount)
	assert.False(t, payload.Final)
}

func TestDecode_UnknownPayloadFieldsSurviveRepublish(t *testing.T) {
	// A reader on an older schema must pass unknown payload fields through
	// untouched when it re-encodes the envelope.
	raw := []byte(`{
		"event_id": "e-1",
		"correlation_id": "c-1",
		"event_type": "BookingCreated",
		"occurred_at": "2026-01-02T15:04:05Z",
		"version": 2,
		"payload": {"booking_id":"b-1","future_field":{"nested":true}}
	}`)

	env, err := Decode(raw)
	require.NoError(t, err)

	out, err := env.Encode()
	require.NoError(t, err)

	var reread map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &reread))

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(reread["payload"], &payload))
	assert.JSONEq(t, `{"nested":true}`, string(payload["future_field"]))
}

func TestDecode_MissingRequiredFieldsArePermanent(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "{{{"},
		{"missing event_id", `{"event_type":"BookingCreated","occurred_at":"2026-01-02T15:04:05Z"}`},
		{"missing event_type", `{"event_id":"e-1","occurred_at":"2026-01-02T15:04:05Z"}`},
		{"missing occurred_at", `{"event_id":"e-1","event_type":"BookingCreated"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, faults.ClassPermanent, faults.ClassOf(err))
		})
	}
}

func TestStreamFor(t *testing.T) {
	assert.Equal(t, StreamBookingCreated, StreamFor(TypeBookingCreated))
	assert.Equal(t, StreamBookingCancelled, StreamFor(TypeBookingCancelled))
	assert.Equal(t, StreamPaymentSucceeded, StreamFor(TypePaymentSucceeded))
	assert.Equal(t, "", StreamFor("NoSuchEvent"))
}

func TestEnvelopeContext(t *testing.T) {
	env := &Envelope{EventID: "e-1", EventType: TypeRetryPayment, OccurredAt: time.Now(), CorrelationID: "c-9"}
	ctx := env.Context(context.Background())
	assert.Equal(t, "c-9", correlation.FromContext(ctx))
}
