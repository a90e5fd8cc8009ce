package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/inventory/domain"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
)

// MemoryInventoryRepository implements InventoryRepository in memory. One
// mutex per repository stands in for the per-row lock, which is stricter
// than Postgres but preserves the oversell guarantee tests care about.
type MemoryInventoryRepository struct {
	mu           sync.Mutex
	items        map[string]*domain.InventoryItem
	reservations map[string]*domain.InventoryReservation // by reservation id
	outbox       *outbox.MemoryStore
}

// NewMemoryInventoryRepository creates an empty repository backed by the
// given outbox store.
func NewMemoryInventoryRepository(store *outbox.MemoryStore) *MemoryInventoryRepository {
	return &MemoryInventoryRepository{
		items:        make(map[string]*domain.InventoryItem),
		reservations: make(map[string]*domain.InventoryReservation),
		outbox:       store,
	}
}

type memoryTx struct {
	repo    *MemoryInventoryRepository
	item    *domain.InventoryItem
	inserts []*domain.InventoryReservation
	updates []*domain.InventoryReservation
	msgs    []*outbox.Message
}

func (t *memoryTx) UpdateItem(ctx context.Context, item *domain.InventoryItem) error {
	cp := *item
	t.item = &cp
	return nil
}

func (t *memoryTx) InsertReservation(ctx context.Context, res *domain.InventoryReservation) error {
	cp := *res
	t.inserts = append(t.inserts, &cp)
	return nil
}

func (t *memoryTx) UpdateReservation(ctx context.Context, res *domain.InventoryReservation) error {
	cp := *res
	t.updates = append(t.updates, &cp)
	return nil
}

func (t *memoryTx) GetReservationByBooking(ctx context.Context, bookingID string) (*domain.InventoryReservation, error) {
	return t.repo.lookupReservationLocked(bookingID)
}

func (t *memoryTx) AppendOutbox(ctx context.Context, msgs ...*outbox.Message) error {
	t.msgs = append(t.msgs, msgs...)
	return nil
}

// WithItemLock runs fn under the repository mutex and applies the staged
// writes only when fn returns nil.
func (r *MemoryInventoryRepository) WithItemLock(ctx context.Context, itemRef string, fn func(ctx context.Context, tx Tx, item *domain.InventoryItem) error) error {
	r.mu.Lock()

	item, ok := r.items[itemRef]
	if !ok {
		r.mu.Unlock()
		return domain.ErrItemNotFound
	}
	cp := *item
	tx := &memoryTx{repo: r}

	if err := fn(ctx, tx, &cp); err != nil {
		r.mu.Unlock()
		return err
	}

	// Commit.
	if tx.item != nil {
		r.items[itemRef] = tx.item
	}
	for _, res := range tx.inserts {
		r.reservations[res.ID] = res
	}
	for _, res := range tx.updates {
		r.reservations[res.ID] = res
	}
	msgs := tx.msgs
	r.mu.Unlock()

	if len(msgs) > 0 {
		return r.outbox.Append(ctx, msgs...)
	}
	return nil
}

// UpsertItem creates or resets an item's stock.
func (r *MemoryInventoryRepository) UpsertItem(ctx context.Context, item *domain.InventoryItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ItemRef] = &cp
	return nil
}

// GetItem reads an item.
func (r *MemoryInventoryRepository) GetItem(ctx context.Context, itemRef string) (*domain.InventoryItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemRef]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

// GetReservationByBooking reads the reservation for a booking.
func (r *MemoryInventoryRepository) GetReservationByBooking(ctx context.Context, bookingID string) (*domain.InventoryReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupReservationLocked(bookingID)
}

func (r *MemoryInventoryRepository) lookupReservationLocked(bookingID string) (*domain.InventoryReservation, error) {
	for _, res := range r.reservations {
		if res.BookingID == bookingID {
			cp := *res
			return &cp, nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

// ExpiredReservations lists RESERVED holds past their expiry.
func (r *MemoryInventoryRepository) ExpiredReservations(ctx context.Context, now time.Time, limit int) ([]*domain.InventoryReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.InventoryReservation
	for _, res := range r.reservations {
		if res.Status == domain.ReservationStatusReserved && res.ExpiresAt.Before(now) {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ InventoryRepository = (*MemoryInventoryRepository)(nil)
