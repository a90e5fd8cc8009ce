// Package service implements the payment processor: one bounded-timeout
// gateway attempt per InventoryReserved or RetryPayment event, with a
// bounded attempt budget.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/gateway"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/repository"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/correlation"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/event"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/retry"
)

// Notifier wakes the outbox publisher after a commit.
type Notifier interface {
	Wake()
}

// Config holds the payment service's tuning knobs.
type Config struct {
	// MaxAttempts bounds the number of charge attempts per booking.
	MaxAttempts int

	// GatewayTimeout bounds one gateway call. Expiry counts as a failed
	// attempt, never as a success.
	GatewayTimeout time.Duration

	// Backoff spaces the retry_at of consecutive attempts.
	Backoff *retry.Config
}

// DefaultConfig returns the default payment configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:    3,
		GatewayTimeout: 30 * time.Second,
		Backoff: &retry.Config{
			InitialInterval: 2 * time.Second,
			MaxInterval:     60 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}
}

// ChargeInput carries what one attempt needs. InventoryReserved and
// RetryPayment both map onto it.
type ChargeInput struct {
	BookingID string
	ItemRef   string
	Amount    decimal.Decimal
	Currency  string
	Attempt   int
}

// PaymentService runs charge attempts and emits their outcome events.
type PaymentService struct {
	repo     repository.PaymentRepository
	gateway  gateway.Gateway
	notifier Notifier
	config   *Config
	backoff  *retry.Retrier
	log      *logger.Logger
}

// NewPaymentService creates a PaymentService. notifier may be nil.
func NewPaymentService(repo repository.PaymentRepository, gw gateway.Gateway, notifier Notifier, config *Config, log *logger.Logger) *PaymentService {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.GatewayTimeout <= 0 {
		config.GatewayTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Get()
	}
	return &PaymentService{
		repo:     repo,
		gateway:  gw,
		notifier: notifier,
		config:   config,
		backoff:  retry.New(config.Backoff),
		log:      log.Named("payment"),
	}
}

// HandleInventoryReserved runs the first charge attempt for a booking.
func (s *PaymentService) HandleInventoryReserved(ctx context.Context, p event.InventoryReservedPayload) error {
	return s.Attempt(ctx, ChargeInput{
		BookingID: p.BookingID,
		ItemRef:   p.ItemRef,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Attempt:   1,
	})
}

// HandleRetryPayment waits out retry_at and runs the next attempt. A zero
// Attempt marks an operator-initiated retry, which carries no attempt
// history; the next attempt number is resolved from the latest recorded one.
func (s *PaymentService) HandleRetryPayment(ctx context.Context, p event.RetryPaymentPayload) error {
	if delay := time.Until(p.RetryAt); delay > 0 {
		select {
		case <-ctx.Done():
			// Handler timeout before retry_at; requeued as transient.
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	attempt := p.Attempt + 1
	if p.Attempt == 0 {
		next, err := s.nextAttempt(ctx, p.BookingID)
		if err != nil {
			return err
		}
		if next == 0 {
			// Already succeeded or out of budget; nothing to retry.
			s.log.Info("retry request has nothing to do",
				zap.String("booking_id", p.BookingID),
				correlation.Field(ctx),
			)
			return nil
		}
		attempt = next
	}

	return s.Attempt(ctx, ChargeInput{
		BookingID: p.BookingID,
		ItemRef:   p.ItemRef,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Attempt:   attempt,
	})
}

// nextAttempt resolves the attempt number an operator retry should run, or 0
// when the payment is already resolved.
func (s *PaymentService) nextAttempt(ctx context.Context, bookingID string) (int, error) {
	latest, err := s.repo.LatestByBooking(ctx, bookingID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	switch latest.Status {
	case domain.PaymentStatusSuccess:
		return 0, nil
	case domain.PaymentStatusPending:
		// Crashed mid-attempt; resume it.
		return latest.AttemptCount, nil
	}
	if latest.AttemptCount >= s.config.MaxAttempts {
		// The terminal PaymentFailed already went out.
		return 0, nil
	}
	return latest.AttemptCount + 1, nil
}

// Attempt runs one charge attempt end to end: persist PENDING, call the
// gateway under the timeout, persist the outcome with its event in one
// transaction.
func (s *PaymentService) Attempt(ctx context.Context, in ChargeInput) error {
	payment, err := s.beginAttempt(ctx, in)
	if err != nil || payment == nil {
		return err
	}

	result, chargeErr := s.charge(ctx, payment)
	if chargeErr != nil {
		// Unreachable gateway and timeouts count as a failed attempt; the
		// outcome of an in-flight charge is unknown, so assuming success
		// would be wrong.
		s.log.Warn("gateway call failed",
			zap.String("booking_id", in.BookingID),
			zap.Int("attempt", in.Attempt),
			zap.Error(chargeErr),
			correlation.Field(ctx),
		)
		return s.recordFailure(ctx, payment, in, fmt.Sprintf("gateway: %v", chargeErr))
	}

	if result.Success {
		return s.recordSuccess(ctx, payment, result.TransactionID)
	}
	return s.recordFailure(ctx, payment, in, result.FailureReason)
}

// beginAttempt persists the PENDING row. A nil payment with nil error means
// the attempt (or the whole payment) already completed and the delivery
// should ack.
func (s *PaymentService) beginAttempt(ctx context.Context, in ChargeInput) (*domain.Payment, error) {
	latest, err := s.repo.LatestByBooking(ctx, in.BookingID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, err
	}
	if latest != nil {
		if latest.Status == domain.PaymentStatusSuccess {
			return nil, nil
		}
		if latest.AttemptCount >= in.Attempt {
			if latest.Status == domain.PaymentStatusPending && latest.AttemptCount == in.Attempt {
				// Crash between insert and outcome; resume this row.
				return latest, nil
			}
			// This attempt already resolved; its events are in the outbox.
			return nil, nil
		}
	}

	payment := domain.NewPayment(in.BookingID, in.Amount, in.Currency, s.gateway.Name(), in.Attempt)
	if err := payment.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrActivePaymentExists) {
			// A concurrent delivery won the insert.
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) charge(ctx context.Context, payment *domain.Payment) (*gateway.ChargeResult, error) {
	chargeCtx, cancel := context.WithTimeout(ctx, s.config.GatewayTimeout)
	defer cancel()

	return s.gateway.Charge(chargeCtx, &gateway.ChargeRequest{
		PaymentID: payment.ID,
		BookingID: payment.BookingID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
		Metadata:  map[string]string{"correlation_id": correlation.FromContext(ctx)},
	})
}

func (s *PaymentService) recordSuccess(ctx context.Context, payment *domain.Payment, transactionID string) error {
	if err := payment.MarkSucceeded(transactionID, time.Now()); err != nil {
		return err
	}

	env, err := event.New(ctx, event.TypePaymentSucceeded, event.PaymentSucceededPayload{
		BookingID:     payment.BookingID,
		PaymentID:     payment.ID,
		TransactionID: transactionID,
	})
	if err != nil {
		return err
	}
	msg, err := outbox.NewMessage(env)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, payment, msg); err != nil {
		return err
	}

	s.log.Info("payment succeeded",
		zap.String("booking_id", payment.BookingID),
		zap.String("payment_id", payment.ID),
		zap.Int("attempt", payment.AttemptCount),
		correlation.Field(ctx),
	)
	s.wake()
	return nil
}

// recordFailure persists the FAILED attempt and emits either RetryPayment or
// the terminal PaymentFailed, depending on the remaining budget. A declined
// card is a business outcome, logged at warn.
func (s *PaymentService) recordFailure(ctx context.Context, payment *domain.Payment, in ChargeInput, reason string) error {
	if err := payment.MarkFailed(reason, time.Now()); err != nil {
		return err
	}

	final := payment.AttemptCount >= s.config.MaxAttempts

	var env *event.Envelope
	var err error
	if final {
		env, err = event.New(ctx, event.TypePaymentFailed, event.PaymentFailedPayload{
			BookingID:    payment.BookingID,
			PaymentID:    payment.ID,
			Reason:       reason,
			AttemptCount: payment.AttemptCount,
			Final:        true,
		})
	} else {
		env, err = event.New(ctx, event.TypeRetryPayment, event.RetryPaymentPayload{
			BookingID: payment.BookingID,
			ItemRef:   in.ItemRef,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Attempt:   payment.AttemptCount,
			RetryAt:   time.Now().UTC().Add(s.backoff.Interval(payment.AttemptCount - 1)),
		})
	}
	if err != nil {
		return err
	}
	msg, err := outbox.NewMessage(env)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, payment, msg); err != nil {
		return err
	}

	s.log.Warn("payment attempt failed",
		zap.String("booking_id", payment.BookingID),
		zap.String("payment_id", payment.ID),
		zap.String("reason", reason),
		zap.Int("attempt", payment.AttemptCount),
		zap.Bool("final", final),
		correlation.Field(ctx),
	)
	s.wake()
	return nil
}

// GetLatest returns the booking's most recent attempt.
func (s *PaymentService) GetLatest(ctx context.Context, bookingID string) (*domain.Payment, error) {
	return s.repo.LatestByBooking(ctx, bookingID)
}

func (s *PaymentService) wake() {
	if s.notifier != nil {
		s.notifier.Wake()
	}
}
