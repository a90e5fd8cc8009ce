package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/repository"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

type fixture struct {
	store *outbox.MemoryStore
	repo  *repository.MemoryInventoryRepository
	svc   *InventoryService
}

func newFixture(t *testing.T, itemRef string, total int) *fixture {
	t.Helper()
	store := outbox.NewMemoryStore()
	repo := repository.NewMemoryInventoryRepository(store)
	f := &fixture{
		store: store,
		repo:  repo,
		svc:   NewInventoryService(repo, store, nil, 15*time.Minute, logger.NewNop()),
	}
	require.NoError(t, f.svc.SeedItem(context.Background(), itemRef, total))
	return f
}

func (f *fixture) outboxTypes() []string {
	var types []string
	for _, m := range f.store.All() {
		types = append(types, m.EventType)
	}
	return types
}

func created(bookingID, itemRef string, qty int) event.BookingCreatedPayload {
	return event.BookingCreatedPayload{
		BookingID: bookingID,
		UserID:    "u-1",
		ItemRef:   itemRef,
		Quantity:  qty,
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
	}
}

func (f *fixture) item(t *testing.T, itemRef string) *domain.InventoryItem {
	t.Helper()
	item, err := f.svc.GetItem(context.Background(), itemRef)
	require.NoError(t, err)
	require.NoError(t, item.CheckInvariant())
	return item
}

func TestReserve(t *testing.T) {
	f := newFixture(t, "ROOM-101", 5)

	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-101", 2)))

	item := f.item(t, "ROOM-101")
	assert.Equal(t, 3, item.Available)
	assert.Equal(t, 2, item.Reserved)

	res, err := f.repo.GetReservationByBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusReserved, res.Status)

	// The hold and the InventoryReserved row commit together.
	assert.Equal(t, []string{event.TypeInventoryReserved}, f.outboxTypes())
}

func TestReserveIsIdempotent(t *testing.T) {
	f := newFixture(t, "ROOM-101", 5)
	p := created("bk-1", "ROOM-101", 2)

	require.NoError(t, f.svc.Reserve(context.Background(), p))
	require.NoError(t, f.svc.Reserve(context.Background(), p))

	item := f.item(t, "ROOM-101")
	assert.Equal(t, 2, item.Reserved)
	assert.Equal(t, []string{event.TypeInventoryReserved}, f.outboxTypes())
}

func TestReserveInsufficientStock(t *testing.T) {
	f := newFixture(t, "ROOM-101", 1)

	// A rejection is a business outcome, not an error.
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-101", 3)))

	item := f.item(t, "ROOM-101")
	assert.Equal(t, 1, item.Available)
	assert.Equal(t, 0, item.Reserved)
	assert.Equal(t, []string{event.TypeInventoryReservationFailed}, f.outboxTypes())

	_, err := f.repo.GetReservationByBooking(context.Background(), "bk-1")
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestReserveUnknownItem(t *testing.T) {
	f := newFixture(t, "ROOM-101", 1)

	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-404", 1)))
	assert.Equal(t, []string{event.TypeInventoryReservationFailed}, f.outboxTypes())
}

func TestConfirmReservationConsumesStock(t *testing.T) {
	f := newFixture(t, "ROOM-101", 5)
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-101", 2)))

	require.NoError(t, f.svc.ConfirmReservation(context.Background(), "bk-1"))

	// Consumed stock leaves the pool entirely.
	item := f.item(t, "ROOM-101")
	assert.Equal(t, 3, item.Total)
	assert.Equal(t, 3, item.Available)
	assert.Equal(t, 0, item.Reserved)

	res, err := f.repo.GetReservationByBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, res.Status)

	// Confirmation emits nothing; the booking side reacts to PaymentSucceeded.
	assert.Equal(t, []string{event.TypeInventoryReserved}, f.outboxTypes())

	// Duplicate delivery is a no-op.
	require.NoError(t, f.svc.ConfirmReservation(context.Background(), "bk-1"))
	assert.Equal(t, 3, f.item(t, "ROOM-101").Total)
}

func TestConfirmWithoutReservation(t *testing.T) {
	f := newFixture(t, "ROOM-101", 5)
	require.NoError(t, f.svc.ConfirmReservation(context.Background(), "bk-unknown"))
}

func TestReleaseReservation(t *testing.T) {
	f := newFixture(t, "ROOM-101", 5)
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-101", 2)))

	require.NoError(t, f.svc.ReleaseReservation(context.Background(), "bk-1", "payment_failed"))

	item := f.item(t, "ROOM-101")
	assert.Equal(t, 5, item.Available)
	assert.Equal(t, 0, item.Reserved)

	res, err := f.repo.GetReservationByBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusReleased, res.Status)

	assert.Equal(t, []string{
		event.TypeInventoryReserved,
		event.TypeInventoryReleased,
	}, f.outboxTypes())

	// Duplicate delivery is a no-op and emits nothing further.
	require.NoError(t, f.svc.ReleaseReservation(context.Background(), "bk-1", "payment_failed"))
	assert.Len(t, f.outboxTypes(), 2)
}

func TestReleaseAfterConfirmIsNoOp(t *testing.T) {
	f := newFixture(t, "ROOM-101", 5)
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-101", 2)))
	require.NoError(t, f.svc.ConfirmReservation(context.Background(), "bk-1"))

	// A late release must not refund consumed stock.
	require.NoError(t, f.svc.ReleaseReservation(context.Background(), "bk-1", "expired"))

	item := f.item(t, "ROOM-101")
	assert.Equal(t, 3, item.Total)
	assert.Equal(t, 3, item.Available)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, "ROOM-101", 5)
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-101", 2)))
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-2", "ROOM-101", 1)))

	// Nothing is expired yet.
	released, err := f.svc.SweepExpired(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	// A sweep past the TTL releases both holds.
	released, err = f.svc.SweepExpired(context.Background(), time.Now().Add(16*time.Minute), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, released)

	item := f.item(t, "ROOM-101")
	assert.Equal(t, 5, item.Available)
	assert.Equal(t, 0, item.Reserved)

	assert.Equal(t, []string{
		event.TypeInventoryReserved,
		event.TypeInventoryReserved,
		event.TypeInventoryReleased,
		event.TypeInventoryReleased,
	}, f.outboxTypes())
}

func TestConservationUnderMixedOutcomes(t *testing.T) {
	f := newFixture(t, "ROOM-101", 3)

	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-1", "ROOM-101", 1)))
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-2", "ROOM-101", 1)))
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-3", "ROOM-101", 1)))

	// Fourth booking finds nothing left.
	require.NoError(t, f.svc.Reserve(context.Background(), created("bk-4", "ROOM-101", 1)))

	require.NoError(t, f.svc.ConfirmReservation(context.Background(), "bk-1"))
	require.NoError(t, f.svc.ReleaseReservation(context.Background(), "bk-2", "payment_failed"))

	item := f.item(t, "ROOM-101")
	assert.Equal(t, 2, item.Total)
	assert.Equal(t, 1, item.Available)
	assert.Equal(t, 1, item.Reserved)
}
