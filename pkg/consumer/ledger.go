package consumer

import (
	"context"
	"time"
)

// DefaultClaimLease bounds how long an in_progress claim survives without
// completing. A worker that crashes between Begin and Complete leaves its
// claim behind; once the lease expires a redelivery may reclaim the key.
// Must comfortably exceed the handler timeout.
const DefaultClaimLease = 5 * time.Minute

// BeginState is the ledger's verdict on an idempotency key.
type BeginState int

const (
	// StateFresh means the key was unseen; the caller now holds it
	// in_progress and must Complete or Clear it.
	StateFresh BeginState = iota
	// StateInProgress means another worker holds the key.
	StateInProgress
	// StateCompleted means the work behind the key already committed.
	StateCompleted
)

// String implements fmt.Stringer for log fields.
func (s BeginState) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Ledger is the persisted idempotency ledger of one service. The Begin
// insert is the mutual-exclusion primitive: exactly one of several
// concurrent workers gets StateFresh for a key.
type Ledger interface {
	// Begin claims the key. StateFresh means the caller owns it and must
	// finish with Complete or Clear.
	Begin(ctx context.Context, key string) (BeginState, error)

	// Complete marks the key done. Later Begins return StateCompleted.
	Complete(ctx context.Context, key string) error

	// Clear releases an in_progress key after a failed attempt so a
	// redelivery can claim it again.
	Clear(ctx context.Context, key string) error

	// RecordDelivery increments and returns the per-event delivery counter.
	// It backs redelivery counting when the broker exposes no counter of
	// its own.
	RecordDelivery(ctx context.Context, eventID string) (int, error)
}
