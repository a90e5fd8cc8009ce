package repository

import (
	"context"
	"sync"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// MemoryBookingRepository implements BookingRepository in memory, writing
// outbox messages to a MemoryStore under the same mutex so the atomicity
// contract holds for tests.
type MemoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	outbox   *outbox.MemoryStore
}

// NewMemoryBookingRepository creates an empty repository backed by the given
// outbox store.
func NewMemoryBookingRepository(store *outbox.MemoryStore) *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]*domain.Booking),
		outbox:   store,
	}
}

// Create inserts the booking and appends its outbox messages.
func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking, msgs ...*outbox.Message) error {
	r.mu.Lock()
	if _, exists := r.bookings[booking.ID]; exists {
		r.mu.Unlock()
		return domain.ErrVersionConflict
	}
	cp := *booking
	r.bookings[booking.ID] = &cp
	r.mu.Unlock()

	if len(msgs) > 0 {
		return r.outbox.Append(ctx, msgs...)
	}
	return nil
}

// GetByID retrieves a booking by its ID.
func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

// Update applies a compare-and-swap on version.
func (r *MemoryBookingRepository) Update(ctx context.Context, booking *domain.Booking, msgs ...*outbox.Message) error {
	r.mu.Lock()
	current, ok := r.bookings[booking.ID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrBookingNotFound
	}
	if current.Version != booking.Version {
		r.mu.Unlock()
		return domain.ErrVersionConflict
	}
	cp := *booking
	cp.Version++
	r.bookings[booking.ID] = &cp
	r.mu.Unlock()

	booking.Version++
	if len(msgs) > 0 {
		return r.outbox.Append(ctx, msgs...)
	}
	return nil
}

var _ BookingRepository = (*MemoryBookingRepository)(nil)
