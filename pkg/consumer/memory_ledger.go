package consumer

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger implements Ledger in memory for tests and the end-to-end
// scenarios.
type MemoryLedger struct {
	mu         sync.Mutex
	status     map[string]string
	claimedAt  map[string]time.Time
	deliveries map[string]int
	lease      time.Duration
}

// NewMemoryLedger creates an empty MemoryLedger with the default claim
// lease.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		status:     make(map[string]string),
		claimedAt:  make(map[string]time.Time),
		deliveries: make(map[string]int),
		lease:      DefaultClaimLease,
	}
}

// SetLease overrides the claim lease, for test setups.
func (l *MemoryLedger) SetLease(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lease = d
}

// Begin claims the key under the ledger mutex. A stale in_progress claim is
// reclaimed, like the SQL ledger's lease.
func (l *MemoryLedger) Begin(ctx context.Context, key string) (BeginState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.status[key] {
	case "":
		l.status[key] = "in_progress"
		l.claimedAt[key] = time.Now()
		return StateFresh, nil
	case "in_progress":
		if time.Since(l.claimedAt[key]) >= l.lease {
			l.claimedAt[key] = time.Now()
			return StateFresh, nil
		}
		return StateInProgress, nil
	default:
		return StateCompleted, nil
	}
}

// Complete marks the key done.
func (l *MemoryLedger) Complete(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[key] = "completed"
	return nil
}

// Clear releases an in_progress key.
func (l *MemoryLedger) Clear(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status[key] == "in_progress" {
		delete(l.status, key)
		delete(l.claimedAt, key)
	}
	return nil
}

// Claim marks the key in_progress as of the given time, simulating a worker
// that took the key and crashed. For test setups.
func (l *MemoryLedger) Claim(key string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status[key] = "in_progress"
	l.claimedAt[key] = at
}

// RecordDelivery increments and returns the per-event delivery counter.
func (l *MemoryLedger) RecordDelivery(ctx context.Context, eventID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deliveries[eventID]++
	return l.deliveries[eventID], nil
}

// Completed reports whether the key finished, for test assertions.
func (l *MemoryLedger) Completed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status[key] == "completed"
}

var _ Ledger = (*MemoryLedger)(nil)
