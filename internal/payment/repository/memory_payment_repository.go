package repository

import (
	"context"
	"sync"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/payment/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// MemoryPaymentRepository implements PaymentRepository in memory for tests.
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment // by payment id
	outbox   *outbox.MemoryStore
}

// NewMemoryPaymentRepository creates an empty repository backed by the given
// outbox store.
func NewMemoryPaymentRepository(store *outbox.MemoryStore) *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		payments: make(map[string]*domain.Payment),
		outbox:   store,
	}
}

// Create inserts a new PENDING attempt, enforcing the single-active-payment
// invariant.
func (r *MemoryPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.payments {
		if p.BookingID == payment.BookingID && p.Status != domain.PaymentStatusFailed {
			return domain.ErrActivePaymentExists
		}
	}

	cp := *payment
	r.payments[payment.ID] = &cp
	return nil
}

// Update writes the attempt's outcome and appends the outbox messages.
func (r *MemoryPaymentRepository) Update(ctx context.Context, payment *domain.Payment, msgs ...*outbox.Message) error {
	r.mu.Lock()
	if _, ok := r.payments[payment.ID]; !ok {
		r.mu.Unlock()
		return domain.ErrPaymentNotFound
	}
	cp := *payment
	r.payments[payment.ID] = &cp
	r.mu.Unlock()

	if len(msgs) > 0 {
		return r.outbox.Append(ctx, msgs...)
	}
	return nil
}

// LatestByBooking returns the booking's most recent attempt.
func (r *MemoryPaymentRepository) LatestByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *domain.Payment
	for _, p := range r.payments {
		if p.BookingID != bookingID {
			continue
		}
		if latest == nil || p.AttemptCount > latest.AttemptCount {
			latest = p
		}
	}
	if latest == nil {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *latest
	return &cp, nil
}

var _ PaymentRepository = (*MemoryPaymentRepository)(nil)
