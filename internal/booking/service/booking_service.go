// Package service implements the booking saga coordinator: the create
// command and the reactions to inventory and payment outcomes.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/repository"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/faults"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// Notifier wakes the outbox publisher after a commit. The publisher's Wake
// method satisfies it.
type Notifier interface {
	Wake()
}

// BookingService coordinates the booking saga.
type BookingService struct {
	repo     repository.BookingRepository
	notifier Notifier
	log      *logger.Logger
}

// NewBookingService creates a BookingService. notifier may be nil.
func NewBookingService(repo repository.BookingRepository, notifier Notifier, log *logger.Logger) *BookingService {
	if log == nil {
		log = logger.Get()
	}
	return &BookingService{
		repo:     repo,
		notifier: notifier,
		log:      log.Named("booking"),
	}
}

// CreateBookingInput is the create command.
type CreateBookingInput struct {
	UserID   string
	ItemRef  string
	Quantity int
	Amount   decimal.Decimal
	Currency string
}

// CreateBooking accepts a booking as PENDING and emits BookingCreated
// through the outbox in the same transaction.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*domain.Booking, error) {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	booking := domain.NewBooking(in.UserID, in.ItemRef, in.Quantity, in.Amount, in.Currency)
	if err := booking.Validate(); err != nil {
		return nil, err
	}

	env, err := event.New(ctx, event.TypeBookingCreated, event.BookingCreatedPayload{
		BookingID: booking.ID,
		UserID:    booking.UserID,
		ItemRef:   booking.ItemRef,
		Quantity:  booking.Quantity,
		Amount:    booking.Amount,
		Currency:  booking.Currency,
	})
	if err != nil {
		return nil, err
	}
	msg, err := outbox.NewMessage(env)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, booking, msg); err != nil {
		return nil, fmt.Errorf("failed to persist booking: %w", err)
	}
	s.wake()

	s.log.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("item_ref", booking.ItemRef),
		correlation.Field(ctx),
	)
	return booking, nil
}

// GetBooking retrieves a booking by id.
func (s *BookingService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// RetryPayment is the operator affordance: it re-kicks the payment leg of a
// PENDING booking by emitting RetryPayment. The version CAS on the update
// guarantees the booking was still PENDING when the event committed.
func (s *BookingService) RetryPayment(ctx context.Context, bookingID string) error {
	booking, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if !booking.IsPending() {
		return domain.ErrNotPending
	}

	env, err := event.New(ctx, event.TypeRetryPayment, event.RetryPaymentPayload{
		BookingID: booking.ID,
		ItemRef:   booking.ItemRef,
		Amount:    booking.Amount,
		Currency:  booking.Currency,
		RetryAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	msg, err := outbox.NewMessage(env)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, booking, msg); err != nil {
		return err
	}
	s.wake()

	s.log.Info("payment retry requested",
		zap.String("booking_id", booking.ID),
		correlation.Field(ctx),
	)
	return nil
}

// HandleReservationFailed cancels a PENDING booking after the inventory leg
// reported a business failure.
func (s *BookingService) HandleReservationFailed(ctx context.Context, p event.InventoryReservationFailedPayload) error {
	return s.withRetry(ctx, func() error {
		booking, err := s.repo.GetByID(ctx, p.BookingID)
		if err != nil {
			return s.classifyLookup(err, p.BookingID)
		}
		if booking.IsTerminal() {
			// Duplicate or late event; nothing to do.
			return nil
		}

		if err := booking.Cancel("inventory: "+p.Reason, time.Now()); err != nil {
			s.log.Warn("skipping cancel on terminal booking",
				zap.String("booking_id", booking.ID), zap.Error(err))
			return nil
		}

		env, err := event.New(ctx, event.TypeBookingCancelled, event.BookingCancelledPayload{
			BookingID: booking.ID,
			Reason:    booking.CancellationReason,
		})
		if err != nil {
			return err
		}
		msg, err := outbox.NewMessage(env)
		if err != nil {
			return err
		}

		if err := s.repo.Update(ctx, booking, msg); err != nil {
			return err
		}
		s.wake()

		s.log.Warn("booking cancelled: inventory unavailable",
			zap.String("booking_id", booking.ID),
			zap.String("reason", p.Reason),
			correlation.Field(ctx),
		)
		return nil
	})
}

// HandlePaymentSucceeded confirms a PENDING booking. A success landing on an
// already CANCELLED booking triggers the reconcile path: log and emit
// RefundRequested.
func (s *BookingService) HandlePaymentSucceeded(ctx context.Context, p event.PaymentSucceededPayload) error {
	return s.withRetry(ctx, func() error {
		booking, err := s.repo.GetByID(ctx, p.BookingID)
		if err != nil {
			return s.classifyLookup(err, p.BookingID)
		}

		switch booking.Status {
		case domain.BookingStatusConfirmed:
			return nil
		case domain.BookingStatusCancelled:
			return s.requestRefund(ctx, booking, p)
		}

		if err := booking.Confirm(time.Now()); err != nil {
			s.log.Warn("skipping confirm on terminal booking",
				zap.String("booking_id", booking.ID), zap.Error(err))
			return nil
		}

		if err := s.repo.Update(ctx, booking); err != nil {
			return err
		}
		s.wake()

		s.log.Info("booking confirmed",
			zap.String("booking_id", booking.ID),
			zap.String("payment_id", p.PaymentID),
			correlation.Field(ctx),
		)
		return nil
	})
}

// requestRefund handles PaymentSucceeded arriving after cancellation. The
// refund machinery itself lives outside the saga core.
func (s *BookingService) requestRefund(ctx context.Context, booking *domain.Booking, p event.PaymentSucceededPayload) error {
	s.log.Warn("payment succeeded for cancelled booking, requesting refund",
		zap.String("booking_id", booking.ID),
		zap.String("payment_id", p.PaymentID),
		correlation.Field(ctx),
	)

	env, err := event.New(ctx, event.TypeRefundRequested, event.RefundRequestedPayload{
		BookingID: booking.ID,
		PaymentID: p.PaymentID,
		Reason:    "payment succeeded after cancellation",
	})
	if err != nil {
		return err
	}
	msg, err := outbox.NewMessage(env)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, booking, msg); err != nil {
		return err
	}
	s.wake()
	return nil
}

// HandlePaymentFailed cancels the booking only on a final failure;
// non-final failures are acked without a state change because the payment
// service is still retrying.
func (s *BookingService) HandlePaymentFailed(ctx context.Context, p event.PaymentFailedPayload) error {
	if !p.Final {
		s.log.Debug("non-final payment failure, waiting for retries",
			zap.String("booking_id", p.BookingID),
			zap.Int("attempt_count", p.AttemptCount),
		)
		return nil
	}

	return s.withRetry(ctx, func() error {
		booking, err := s.repo.GetByID(ctx, p.BookingID)
		if err != nil {
			return s.classifyLookup(err, p.BookingID)
		}
		if booking.IsTerminal() {
			return nil
		}

		if err := booking.Cancel("payment: "+p.Reason, time.Now()); err != nil {
			s.log.Warn("skipping cancel on terminal booking",
				zap.String("booking_id", booking.ID), zap.Error(err))
			return nil
		}

		env, err := event.New(ctx, event.TypeBookingCancelled, event.BookingCancelledPayload{
			BookingID: booking.ID,
			Reason:    booking.CancellationReason,
		})
		if err != nil {
			return err
		}
		msg, err := outbox.NewMessage(env)
		if err != nil {
			return err
		}

		if err := s.repo.Update(ctx, booking, msg); err != nil {
			return err
		}
		s.wake()

		s.log.Warn("booking cancelled: payment exhausted",
			zap.String("booking_id", booking.ID),
			zap.String("reason", p.Reason),
			zap.Int("attempt_count", p.AttemptCount),
			correlation.Field(ctx),
		)
		return nil
	})
}

// withRetry runs op, retrying once on a lost optimistic-concurrency race.
func (s *BookingService) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if errors.Is(err, domain.ErrVersionConflict) {
		err = op()
	}
	if errors.Is(err, domain.ErrVersionConflict) {
		// Still losing after the retry; let the broker redeliver.
		return faults.Transient(err)
	}
	return err
}

// classifyLookup turns a missing booking into a transient fault: the event
// may have outrun the booking row on another instance.
func (s *BookingService) classifyLookup(err error, bookingID string) error {
	if errors.Is(err, domain.ErrBookingNotFound) {
		return faults.Transient(fmt.Errorf("booking %s not yet visible: %w", bookingID, err))
	}
	return err
}

func (s *BookingService) wake() {
	if s.notifier != nil {
		s.notifier.Wake()
	}
}
