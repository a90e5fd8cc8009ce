package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/gateway"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/repository"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/retry"
)

type fixture struct {
	store   *outbox.MemoryStore
	repo    *repository.MemoryPaymentRepository
	gateway *gateway.MockGateway
	svc     *PaymentService
}

func newFixture() *fixture {
	store := outbox.NewMemoryStore()
	repo := repository.NewMemoryPaymentRepository(store)
	gw := gateway.NewMockGateway()
	cfg := &Config{
		MaxAttempts:    3,
		GatewayTimeout: time.Second,
		Backoff: &retry.Config{
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      2.0,
		},
	}
	return &fixture{
		store:   store,
		repo:    repo,
		gateway: gw,
		svc:     NewPaymentService(repo, gw, nil, cfg, logger.NewNop()),
	}
}

func (f *fixture) outboxTypes() []string {
	var types []string
	for _, m := range f.store.All() {
		types = append(types, m.EventType)
	}
	return types
}

func reserved(bookingID string) event.InventoryReservedPayload {
	return event.InventoryReservedPayload{
		BookingID:     bookingID,
		ReservationID: "res-1",
		ItemRef:       "ROOM-101",
		Quantity:      1,
		Amount:        decimal.NewFromInt(500),
		Currency:      "USD",
	}
}

func TestFirstAttemptSucceeds(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))

	p, err := f.svc.GetLatest(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, 1, p.AttemptCount)
	assert.NotEmpty(t, p.TransactionID)

	assert.Equal(t, []string{event.TypePaymentSucceeded}, f.outboxTypes())
	assert.Equal(t, 1, f.gateway.Charges("bk-1"))
}

func TestDeclineSchedulesRetry(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1", gateway.Decline("card_declined"))

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))

	p, err := f.svc.GetLatest(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Equal(t, "card_declined", p.FailureReason)

	// A non-final failure emits RetryPayment, never PaymentFailed.
	require.Equal(t, []string{event.TypeRetryPayment}, f.outboxTypes())

	var rp event.RetryPaymentPayload
	require.NoError(t, json.Unmarshal(envelopePayload(t, f.store.All()[0].Payload), &rp))
	assert.Equal(t, 1, rp.Attempt)
	assert.Equal(t, "ROOM-101", rp.ItemRef)
	assert.False(t, rp.RetryAt.IsZero())
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1",
		gateway.Decline("card_declined"),
		gateway.Decline("card_declined"),
		gateway.Succeed(),
	)

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), retryPayload(t, f.store.All()[0].Payload)))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), retryPayload(t, f.store.All()[1].Payload)))

	p, err := f.svc.GetLatest(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, 3, p.AttemptCount)

	assert.Equal(t, []string{
		event.TypeRetryPayment,
		event.TypeRetryPayment,
		event.TypePaymentSucceeded,
	}, f.outboxTypes())
}

func TestExhaustedBudgetEmitsFinalFailure(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1",
		gateway.Decline("insufficient_funds"),
		gateway.Decline("insufficient_funds"),
		gateway.Decline("insufficient_funds"),
	)

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), retryPayload(t, f.store.All()[0].Payload)))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), retryPayload(t, f.store.All()[1].Payload)))

	assert.Equal(t, []string{
		event.TypeRetryPayment,
		event.TypeRetryPayment,
		event.TypePaymentFailed,
	}, f.outboxTypes())

	var pf event.PaymentFailedPayload
	require.NoError(t, json.Unmarshal(envelopePayload(t, f.store.All()[2].Payload), &pf))
	assert.True(t, pf.Final)
	assert.Equal(t, 3, pf.AttemptCount)
	assert.Equal(t, 3, f.gateway.Charges("bk-1"))
}

func TestGatewayErrorCountsAsFailedAttempt(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1", gateway.Fail(errors.New("connection refused")))

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))

	p, err := f.svc.GetLatest(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Contains(t, p.FailureReason, "gateway")
	assert.Equal(t, []string{event.TypeRetryPayment}, f.outboxTypes())
}

func TestDuplicateDeliveryDoesNotChargeTwice(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))
	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))

	assert.Equal(t, 1, f.gateway.Charges("bk-1"))
	assert.Equal(t, []string{event.TypePaymentSucceeded}, f.outboxTypes())
}

func TestDuplicateRetryDoesNotChargeTwice(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1", gateway.Decline("card_declined"))

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))
	rp := retryPayload(t, f.store.All()[0].Payload)
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), rp))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), rp))

	assert.Equal(t, 2, f.gateway.Charges("bk-1"))
}

func TestOperatorRetryChargesAfterDecline(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1", gateway.Decline("card_declined"), gateway.Succeed())

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))

	// An operator retry carries no attempt history: Attempt is zero and the
	// service resolves the next attempt itself.
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), event.RetryPaymentPayload{
		BookingID: "bk-1",
		ItemRef:   "ROOM-101",
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
	}))

	assert.Equal(t, 2, f.gateway.Charges("bk-1"))
	p, err := f.svc.GetLatest(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, 2, p.AttemptCount)
}

func TestOperatorRetryAfterSuccessIsNoOp(t *testing.T) {
	f := newFixture()

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), event.RetryPaymentPayload{
		BookingID: "bk-1",
		ItemRef:   "ROOM-101",
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
	}))

	assert.Equal(t, 1, f.gateway.Charges("bk-1"))
	assert.Equal(t, []string{event.TypePaymentSucceeded}, f.outboxTypes())
}

func TestOperatorRetryAfterExhaustionIsNoOp(t *testing.T) {
	f := newFixture()
	f.gateway.ScriptDefault(
		gateway.Decline("insufficient_funds"),
		gateway.Decline("insufficient_funds"),
		gateway.Decline("insufficient_funds"),
	)

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), retryPayload(t, f.store.All()[0].Payload)))
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), retryPayload(t, f.store.All()[1].Payload)))

	// The terminal PaymentFailed already went out; an operator retry must
	// not reopen the budget.
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), event.RetryPaymentPayload{
		BookingID: "bk-1",
		ItemRef:   "ROOM-101",
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
	}))

	assert.Equal(t, 3, f.gateway.Charges("bk-1"))
}

func TestRetryHonoursRetryAt(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1", gateway.Decline("card_declined"), gateway.Succeed())

	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))
	rp := retryPayload(t, f.store.All()[0].Payload)
	rp.RetryAt = time.Now().Add(30 * time.Millisecond)

	start := time.Now()
	require.NoError(t, f.svc.HandleRetryPayment(context.Background(), rp))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetryWaitAbortsOnContextCancel(t *testing.T) {
	f := newFixture()
	f.gateway.Script("bk-1", gateway.Decline("card_declined"))
	require.NoError(t, f.svc.HandleInventoryReserved(context.Background(), reserved("bk-1")))

	rp := retryPayload(t, f.store.All()[0].Payload)
	rp.RetryAt = time.Now().Add(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.svc.HandleRetryPayment(ctx, rp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, f.gateway.Charges("bk-1"))
}

func envelopePayload(t *testing.T, body []byte) []byte {
	t.Helper()
	env, err := event.Decode(body)
	require.NoError(t, err)
	return env.Payload
}

func retryPayload(t *testing.T, body []byte) event.RetryPaymentPayload {
	t.Helper()
	var rp event.RetryPaymentPayload
	require.NoError(t, json.Unmarshal(envelopePayload(t, body), &rp))
	return rp
}
