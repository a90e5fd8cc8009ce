package outbox

import (
	"context"
	"time"
)

// PublishFunc pushes one claimed message to the broker. A nil return marks
// the row published; an error schedules a retry.
type PublishFunc func(ctx context.Context, msg *Message) error

// DrainRequest describes one publisher batch.
type DrainRequest struct {
	// Limit is the maximum number of rows to claim.
	Limit int
	// Now is the claim time; only rows with next_attempt_at <= Now are
	// eligible.
	Now time.Time
	// Publish is invoked per claimed row, in created_at order.
	Publish PublishFunc
	// Backoff returns the retry delay after the given attempt count.
	Backoff func(attempts int) time.Duration
}

// Store persists outbox rows. Implementations must claim rows exclusively
// (concurrent publishers may not claim the same row) and must preserve
// created_at order within one correlation id: when a row fails to publish,
// later rows with the same correlation id are skipped for that batch.
type Store interface {
	// Append inserts messages outside any domain transaction. Domain
	// repositories co-commit rows through their own transactional paths;
	// Append exists for tests and for re-enqueueing.
	Append(ctx context.Context, msgs ...*Message) error

	// DrainBatch claims up to Limit due rows, publishes them in order and
	// records the outcome, all under the store's exclusion mechanism.
	// Returns the number of rows successfully published.
	DrainBatch(ctx context.Context, req DrainRequest) (int, error)

	// PendingCount returns the number of unpublished rows. Used by health
	// reporting and tests.
	PendingCount(ctx context.Context) (int, error)
}
