// Package e2e runs the full booking saga against the in-memory broker,
// stores and ledgers: three services wired exactly as their binaries wire
// them, minus the network.
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookingconsumer "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/consumer"
	bookingdomain "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/domain"
	bookingrepo "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/repository"
	bookingservice "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/service"
	inventoryconsumer "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/consumer"
	inventorydomain "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/domain"
	inventoryrepo "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/repository"
	inventoryservice "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/gateway"
	paymentconsumer "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/consumer"
	paymentdomain "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/domain"
	paymentrepo "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/repository"
	paymentservice "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/broker"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/consumer"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/retry"
)

const (
	waitFor = 3 * time.Second
	tick    = 5 * time.Millisecond
)

type saga struct {
	broker *broker.MemoryBroker

	bookingStore *outbox.MemoryStore
	bookingRepo  *bookingrepo.MemoryBookingRepository
	booking      *bookingservice.BookingService

	inventoryStore *outbox.MemoryStore
	inventoryRepo  *inventoryrepo.MemoryInventoryRepository
	inventory      *inventoryservice.InventoryService

	paymentStore *outbox.MemoryStore
	paymentRepo  *paymentrepo.MemoryPaymentRepository
	gateway      *gateway.MockGateway
	payment      *paymentservice.PaymentService

	publishers []*outbox.Publisher
}

func fastPublisherConfig() *outbox.PublisherConfig {
	return &outbox.PublisherConfig{
		PollInterval: tick,
		BatchSize:    10,
		Backoff: &retry.Config{
			InitialInterval: tick,
			MaxInterval:     50 * time.Millisecond,
			Multiplier:      2.0,
		},
	}
}

// newSaga wires the three services onto one memory broker. Publishers are
// started unless startPublishers is false (the crash-recovery scenario
// starts them later by hand).
func newSaga(t *testing.T, ctx context.Context, startPublishers bool) *saga {
	t.Helper()
	log := logger.NewNop()
	b := broker.NewMemoryBroker()
	s := &saga{broker: b}

	// Booking service.
	s.bookingStore = outbox.NewMemoryStore()
	s.bookingRepo = bookingrepo.NewMemoryBookingRepository(s.bookingStore)
	bookingPub := outbox.NewPublisher(s.bookingStore, b, fastPublisherConfig(), log)
	s.booking = bookingservice.NewBookingService(s.bookingRepo, bookingPub, log)
	bookingRT := consumer.New(b, consumer.NewMemoryLedger(), nil, log)
	require.NoError(t, bookingconsumer.New(bookingRT, s.booking).Start(ctx))

	// Inventory service.
	s.inventoryStore = outbox.NewMemoryStore()
	s.inventoryRepo = inventoryrepo.NewMemoryInventoryRepository(s.inventoryStore)
	inventoryPub := outbox.NewPublisher(s.inventoryStore, b, fastPublisherConfig(), log)
	s.inventory = inventoryservice.NewInventoryService(s.inventoryRepo, s.inventoryStore, inventoryPub, 15*time.Minute, log)
	inventoryRT := consumer.New(b, consumer.NewMemoryLedger(), nil, log)
	require.NoError(t, inventoryconsumer.New(inventoryRT, s.inventory).Start(ctx))

	// Payment service.
	s.paymentStore = outbox.NewMemoryStore()
	s.paymentRepo = paymentrepo.NewMemoryPaymentRepository(s.paymentStore)
	s.gateway = gateway.NewMockGateway()
	paymentPub := outbox.NewPublisher(s.paymentStore, b, fastPublisherConfig(), log)
	s.payment = paymentservice.NewPaymentService(s.paymentRepo, s.gateway, paymentPub, &paymentservice.Config{
		MaxAttempts:    3,
		GatewayTimeout: time.Second,
		Backoff: &retry.Config{
			InitialInterval: tick,
			MaxInterval:     20 * time.Millisecond,
			Multiplier:      2.0,
		},
	}, log)
	paymentRT := consumer.New(b, consumer.NewMemoryLedger(), nil, log)
	require.NoError(t, paymentconsumer.New(paymentRT, s.payment).Start(ctx))

	s.publishers = []*outbox.Publisher{bookingPub, inventoryPub, paymentPub}
	if startPublishers {
		s.startPublishers(t, ctx)
	}
	t.Cleanup(func() {
		for _, p := range s.publishers {
			p.Stop()
		}
	})
	return s
}

func (s *saga) startPublishers(t *testing.T, ctx context.Context) {
	t.Helper()
	for _, p := range s.publishers {
		require.NoError(t, p.Start(ctx))
	}
}

func (s *saga) seed(t *testing.T, itemRef string, total int) {
	t.Helper()
	require.NoError(t, s.inventory.SeedItem(context.Background(), itemRef, total))
}

func (s *saga) create(t *testing.T, itemRef string) *bookingdomain.Booking {
	t.Helper()
	b, err := s.booking.CreateBooking(context.Background(), bookingservice.CreateBookingInput{
		UserID:  "u-1",
		ItemRef: itemRef,
		Amount:  decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	assert.Equal(t, bookingdomain.BookingStatusPending, b.Status)
	return b
}

func (s *saga) bookingStatus(t *testing.T, id string) bookingdomain.BookingStatus {
	t.Helper()
	b, err := s.booking.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b.Status
}

func (s *saga) waitForStatus(t *testing.T, id string, want bookingdomain.BookingStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.bookingStatus(t, id) == want
	}, waitFor, tick, "booking %s never reached %s", id, want)
}

func (s *saga) item(t *testing.T, itemRef string) *inventorydomain.InventoryItem {
	t.Helper()
	item, err := s.inventory.GetItem(context.Background(), itemRef)
	require.NoError(t, err)
	require.NoError(t, item.CheckInvariant())
	return item
}

func TestHappyPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSaga(t, ctx, true)
	s.seed(t, "ROOM-101", 5)

	b := s.create(t, "ROOM-101")
	s.waitForStatus(t, b.ID, bookingdomain.BookingStatusConfirmed)

	// Stock is consumed for good.
	require.Eventually(t, func() bool {
		return s.item(t, "ROOM-101").Total == 4
	}, waitFor, tick)
	item := s.item(t, "ROOM-101")
	assert.Equal(t, 4, item.Available)
	assert.Equal(t, 0, item.Reserved)

	p, err := s.payment.GetLatest(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, 1, p.AttemptCount)
}

func TestInsufficientInventoryCancelsBooking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSaga(t, ctx, true)
	s.seed(t, "ROOM-101", 0)

	b := s.create(t, "ROOM-101")
	s.waitForStatus(t, b.ID, bookingdomain.BookingStatusCancelled)

	got, err := s.booking.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "inventory: insufficient", got.CancellationReason)

	// No payment was ever attempted.
	assert.Equal(t, 0, s.gateway.Charges(b.ID))
	item := s.item(t, "ROOM-101")
	assert.Equal(t, 0, item.Reserved)
}

func TestPaymentSucceedsOnThirdAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSaga(t, ctx, true)
	s.seed(t, "ROOM-101", 5)
	s.gateway.ScriptDefault(
		gateway.Decline("card_declined"),
		gateway.Decline("card_declined"),
		gateway.Succeed(),
	)

	b := s.create(t, "ROOM-101")
	s.waitForStatus(t, b.ID, bookingdomain.BookingStatusConfirmed)
	assert.Equal(t, 3, s.gateway.Charges(b.ID))

	p, err := s.payment.GetLatest(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, p.AttemptCount)
	assert.Equal(t, paymentdomain.PaymentStatusSuccess, p.Status)
}

func TestPaymentExhaustsRetriesAndReleasesInventory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSaga(t, ctx, true)
	s.seed(t, "ROOM-101", 5)
	s.gateway.ScriptDefault(
		gateway.Decline("insufficient_funds"),
		gateway.Decline("insufficient_funds"),
		gateway.Decline("insufficient_funds"),
	)

	b := s.create(t, "ROOM-101")
	s.waitForStatus(t, b.ID, bookingdomain.BookingStatusCancelled)
	assert.Equal(t, 3, s.gateway.Charges(b.ID))

	got, err := s.booking.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Contains(t, got.CancellationReason, "payment:")

	// The hold returns to the pool.
	require.Eventually(t, func() bool {
		item := s.item(t, "ROOM-101")
		return item.Available == 5 && item.Reserved == 0
	}, waitFor, tick)

	res, err := s.inventoryRepo.GetReservationByBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, inventorydomain.ReservationStatusReleased, res.Status)
}

func TestDuplicateDeliveriesAreEffectiveOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newSaga(t, ctx, true)
	s.seed(t, "ROOM-101", 5)

	// Every event on these streams is delivered twice more.
	s.broker.InjectDuplicates("booking_created", 2)
	s.broker.InjectDuplicates("inventory_reserved", 2)
	s.broker.InjectDuplicates("payment_succeeded", 2)

	b := s.create(t, "ROOM-101")
	s.waitForStatus(t, b.ID, bookingdomain.BookingStatusConfirmed)

	// One reservation, one charge, one confirm despite triple delivery.
	assert.Equal(t, 1, s.gateway.Charges(b.ID))
	require.Eventually(t, func() bool {
		return s.item(t, "ROOM-101").Total == 4
	}, waitFor, tick)
	item := s.item(t, "ROOM-101")
	assert.Equal(t, 4, item.Available)
	assert.Equal(t, 0, item.Reserved)
}

func TestEventsSurviveCrashBeforePublish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Publishers down: the commit happens but nothing reaches the broker,
	// like a crash between commit and publish.
	s := newSaga(t, ctx, false)
	s.seed(t, "ROOM-101", 5)

	b := s.create(t, "ROOM-101")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, bookingdomain.BookingStatusPending, s.bookingStatus(t, b.ID))
	pending, err := s.bookingStore.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	// Restart: the drained outbox completes the saga.
	s.startPublishers(t, ctx)
	s.waitForStatus(t, b.ID, bookingdomain.BookingStatusConfirmed)
}
