// Package service implements the inventory reservation engine: holds on
// BookingCreated, consumption on PaymentSucceeded, release on final
// PaymentFailed and expiry.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/repository"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// Notifier wakes the outbox publisher after a commit.
type Notifier interface {
	Wake()
}

// InventoryService applies the reservation lifecycle under the item lock.
type InventoryService struct {
	repo     repository.InventoryRepository
	store    outbox.Store
	notifier Notifier
	ttl      time.Duration
	log      *logger.Logger
}

// NewInventoryService creates an InventoryService. store is used only for
// failure events that have no item row to lock; notifier may be nil.
func NewInventoryService(repo repository.InventoryRepository, store outbox.Store, notifier Notifier, ttl time.Duration, log *logger.Logger) *InventoryService {
	if log == nil {
		log = logger.Get()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &InventoryService{
		repo:     repo,
		store:    store,
		notifier: notifier,
		ttl:      ttl,
		log:      log.Named("inventory"),
	}
}

// Reserve holds stock for a booking. Insufficient stock is a business
// outcome: the failure event commits and the delivery acks.
func (s *InventoryService) Reserve(ctx context.Context, p event.BookingCreatedPayload) error {
	err := s.repo.WithItemLock(ctx, p.ItemRef, func(ctx context.Context, tx repository.Tx, item *domain.InventoryItem) error {
		// Redelivery: an existing reservation for this booking means the
		// hold already committed.
		if _, err := tx.GetReservationByBooking(ctx, p.BookingID); err == nil {
			return nil
		} else if !errors.Is(err, domain.ErrReservationNotFound) {
			return err
		}

		if item.Available < p.Quantity {
			s.log.Warn("insufficient stock, rejecting reservation",
				zap.String("booking_id", p.BookingID),
				zap.String("item_ref", p.ItemRef),
				zap.Int("requested", p.Quantity),
				zap.Int("available", item.Available),
				correlation.Field(ctx),
			)
			return s.stageFailure(ctx, tx, p, "insufficient")
		}

		if err := item.Hold(p.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}

		res := domain.NewReservation(p.BookingID, p.ItemRef, p.Quantity, s.ttl)
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}

		env, err := event.New(ctx, event.TypeInventoryReserved, event.InventoryReservedPayload{
			BookingID:     p.BookingID,
			ReservationID: res.ID,
			ItemRef:       p.ItemRef,
			Quantity:      p.Quantity,
			Amount:        p.Amount,
			Currency:      p.Currency,
			ExpiresAt:     res.ExpiresAt,
		})
		if err != nil {
			return err
		}
		msg, err := outbox.NewMessage(env)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, msg); err != nil {
			return err
		}

		s.log.Info("stock reserved",
			zap.String("booking_id", p.BookingID),
			zap.String("reservation_id", res.ID),
			zap.String("item_ref", p.ItemRef),
			correlation.Field(ctx),
		)
		return nil
	})

	if errors.Is(err, domain.ErrItemNotFound) {
		// No row to lock; the failure event goes through the plain store.
		s.log.Warn("unknown item, rejecting reservation",
			zap.String("booking_id", p.BookingID),
			zap.String("item_ref", p.ItemRef),
			correlation.Field(ctx),
		)
		if err := s.emitFailure(ctx, p, "unknown_item"); err != nil {
			return err
		}
		s.wake()
		return nil
	}
	if err == nil {
		s.wake()
	}
	return err
}

func (s *InventoryService) stageFailure(ctx context.Context, tx repository.Tx, p event.BookingCreatedPayload, reason string) error {
	env, err := event.New(ctx, event.TypeInventoryReservationFailed, event.InventoryReservationFailedPayload{
		BookingID: p.BookingID,
		ItemRef:   p.ItemRef,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	msg, err := outbox.NewMessage(env)
	if err != nil {
		return err
	}
	return tx.AppendOutbox(ctx, msg)
}

func (s *InventoryService) emitFailure(ctx context.Context, p event.BookingCreatedPayload, reason string) error {
	env, err := event.New(ctx, event.TypeInventoryReservationFailed, event.InventoryReservationFailedPayload{
		BookingID: p.BookingID,
		ItemRef:   p.ItemRef,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	msg, err := outbox.NewMessage(env)
	if err != nil {
		return err
	}
	return s.store.Append(ctx, msg)
}

// ConfirmReservation consumes the hold after payment landed. Stock does not
// return to the available pool.
func (s *InventoryService) ConfirmReservation(ctx context.Context, bookingID string) error {
	res, err := s.repo.GetReservationByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			// Nothing held; duplicate or the reserve leg never ran.
			return nil
		}
		return err
	}

	return s.repo.WithItemLock(ctx, res.ItemRef, func(ctx context.Context, tx repository.Tx, item *domain.InventoryItem) error {
		res, err := tx.GetReservationByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !res.IsActive() {
			return nil
		}

		if err := res.Confirm(time.Now()); err != nil {
			return err
		}
		if err := item.Consume(res.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}

		s.log.Info("reservation confirmed",
			zap.String("booking_id", bookingID),
			zap.String("reservation_id", res.ID),
			correlation.Field(ctx),
		)
		return nil
	})
}

// ReleaseReservation returns held stock to the pool and emits
// InventoryReleased. cause distinguishes payment failure from expiry in
// logs.
func (s *InventoryService) ReleaseReservation(ctx context.Context, bookingID, cause string) error {
	res, err := s.repo.GetReservationByBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			return nil
		}
		return err
	}

	err = s.repo.WithItemLock(ctx, res.ItemRef, func(ctx context.Context, tx repository.Tx, item *domain.InventoryItem) error {
		res, err := tx.GetReservationByBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if !res.IsActive() {
			return nil
		}

		if err := res.Release(time.Now()); err != nil {
			return err
		}
		if err := item.Release(res.Quantity); err != nil {
			return err
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}

		env, err := event.New(ctx, event.TypeInventoryReleased, event.InventoryReleasedPayload{
			BookingID: bookingID,
			ItemRef:   res.ItemRef,
			Quantity:  res.Quantity,
		})
		if err != nil {
			return err
		}
		msg, err := outbox.NewMessage(env)
		if err != nil {
			return err
		}
		if err := tx.AppendOutbox(ctx, msg); err != nil {
			return err
		}

		s.log.Info("reservation released",
			zap.String("booking_id", bookingID),
			zap.String("reservation_id", res.ID),
			zap.String("cause", cause),
			correlation.Field(ctx),
		)
		return nil
	})
	if err == nil {
		s.wake()
	}
	return err
}

// SweepExpired releases every RESERVED hold past its expiry. This recovers
// stock even if PaymentFailed is lost forever. Returns the number of holds
// released.
func (s *InventoryService) SweepExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	expired, err := s.repo.ExpiredReservations(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, res := range expired {
		if err := s.ReleaseReservation(ctx, res.BookingID, "expired"); err != nil {
			// Keep sweeping; this hold is retried next pass.
			s.log.Error("failed to release expired reservation",
				zap.String("reservation_id", res.ID),
				zap.String("booking_id", res.BookingID),
				zap.Error(err),
			)
			continue
		}
		released++
	}
	return released, nil
}

// SeedItem is the operator affordance for stocking an item.
func (s *InventoryService) SeedItem(ctx context.Context, itemRef string, total int) error {
	return s.repo.UpsertItem(ctx, domain.NewInventoryItem(itemRef, total))
}

// GetItem reads an item's counters.
func (s *InventoryService) GetItem(ctx context.Context, itemRef string) (*domain.InventoryItem, error) {
	return s.repo.GetItem(ctx, itemRef)
}

func (s *InventoryService) wake() {
	if s.notifier != nil {
		s.notifier.Wake()
	}
}
