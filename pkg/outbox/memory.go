package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store in memory for tests and the end-to-end saga
// scenarios. A single mutex stands in for the database's row locks.
type MemoryStore struct {
	mu   sync.Mutex
	msgs []*Message

	// onAppend, when set, is called after each Append. Services use it to
	// wake their publisher, mirroring the in-process signal the Postgres
	// path gets from the repository layer.
	onAppend func()
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// OnAppend registers a hook invoked after every Append.
func (s *MemoryStore) OnAppend(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAppend = fn
}

// Append inserts messages.
func (s *MemoryStore) Append(ctx context.Context, msgs ...*Message) error {
	s.mu.Lock()
	for _, m := range msgs {
		cp := *m
		s.msgs = append(s.msgs, &cp)
	}
	hook := s.onAppend
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

// DrainBatch publishes due messages in created_at order under the store
// mutex, honouring per-correlation blocking like the Postgres store.
func (s *MemoryStore) DrainBatch(ctx context.Context, req DrainRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*Message
	for _, m := range s.msgs {
		if m.IsPublished() || m.NextAttemptAt.After(req.Now) {
			continue
		}
		// An earlier sibling backed off past its next_attempt_at is
		// absent from this pass, so the blocked map below cannot hold
		// this row back; skip it here instead.
		if m.CorrelationID != "" && s.hasBackedOffHeadLocked(m, req.Now) {
			continue
		}
		due = append(due, m)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > req.Limit {
		due = due[:req.Limit]
	}

	published := 0
	blocked := make(map[string]bool)

	for _, msg := range due {
		if msg.CorrelationID != "" && blocked[msg.CorrelationID] {
			continue
		}

		if err := req.Publish(ctx, msg); err != nil {
			msg.MarkAttemptFailed(req.Now.Add(req.Backoff(msg.PublishAttempts + 1)))
			if msg.CorrelationID != "" {
				blocked[msg.CorrelationID] = true
			}
			continue
		}

		msg.MarkPublished(req.Now)
		published++
	}
	return published, nil
}

func (s *MemoryStore) hasBackedOffHeadLocked(m *Message, now time.Time) bool {
	for _, o := range s.msgs {
		if o != m && o.CorrelationID == m.CorrelationID &&
			!o.IsPublished() && o.NextAttemptAt.After(now) &&
			o.CreatedAt.Before(m.CreatedAt) {
			return true
		}
	}
	return false
}

// PendingCount returns the number of unpublished messages.
func (s *MemoryStore) PendingCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, m := range s.msgs {
		if !m.IsPublished() {
			count++
		}
	}
	return count, nil
}

// All returns a snapshot of every message, for test assertions.
func (s *MemoryStore) All() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Message, 0, len(s.msgs))
	for _, m := range s.msgs {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
