package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/faults"
)

// PostgresLedger implements Ledger on a processed_events table:
//
//	processed_events(idempotency_key text primary key, status text,
//	    attempts int, first_seen_at timestamptz, completed_at timestamptz)
//
// Delivery counters live in the same table under a "delivery:" key prefix
// so one table serves both concerns.
type PostgresLedger struct {
	pool  *pgxpool.Pool
	lease time.Duration
}

// NewPostgresLedger creates a PostgresLedger on the given pool. lease bounds
// how long an in_progress claim may sit uncompleted before a redelivery
// reclaims it; zero selects DefaultClaimLease.
func NewPostgresLedger(pool *pgxpool.Pool, lease time.Duration) *PostgresLedger {
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	return &PostgresLedger{pool: pool, lease: lease}
}

// Begin claims the key with insert-or-conflict. A won insert is StateFresh;
// on conflict the existing row's status decides. An in_progress row older
// than the lease belongs to a crashed worker and is reclaimed in the same
// statement.
func (l *PostgresLedger) Begin(ctx context.Context, key string) (BeginState, error) {
	now := time.Now().UTC()
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO processed_events (idempotency_key, status, attempts, first_seen_at)
		VALUES ($1, 'in_progress', 0, $2)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET first_seen_at = $2
		WHERE processed_events.status = 'in_progress'
		  AND processed_events.first_seen_at <= $3
	`, key, now, now.Add(-l.lease))
	if err != nil {
		return StateFresh, faults.Transient(fmt.Errorf("failed to claim idempotency key %s: %w", key, err))
	}
	if tag.RowsAffected() == 1 {
		return StateFresh, nil
	}

	var status string
	err = l.pool.QueryRow(ctx,
		`SELECT status FROM processed_events WHERE idempotency_key = $1`, key,
	).Scan(&status)
	if err != nil {
		return StateFresh, faults.Transient(fmt.Errorf("failed to read idempotency key %s: %w", key, err))
	}

	if status == "completed" {
		return StateCompleted, nil
	}
	return StateInProgress, nil
}

// Complete marks the key done.
func (l *PostgresLedger) Complete(ctx context.Context, key string) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE processed_events
		SET status = 'completed', completed_at = $2
		WHERE idempotency_key = $1
	`, key, time.Now().UTC())
	if err != nil {
		return faults.Transient(fmt.Errorf("failed to complete idempotency key %s: %w", key, err))
	}
	return nil
}

// Clear releases an in_progress key.
func (l *PostgresLedger) Clear(ctx context.Context, key string) error {
	_, err := l.pool.Exec(ctx, `
		DELETE FROM processed_events
		WHERE idempotency_key = $1 AND status = 'in_progress'
	`, key)
	if err != nil {
		return faults.Transient(fmt.Errorf("failed to clear idempotency key %s: %w", key, err))
	}
	return nil
}

// RecordDelivery upserts the per-event delivery counter and returns the new
// count.
func (l *PostgresLedger) RecordDelivery(ctx context.Context, eventID string) (int, error) {
	var attempts int
	err := l.pool.QueryRow(ctx, `
		INSERT INTO processed_events (idempotency_key, status, attempts, first_seen_at)
		VALUES ($1, 'delivery', 1, $2)
		ON CONFLICT (idempotency_key)
		DO UPDATE SET attempts = processed_events.attempts + 1
		RETURNING attempts
	`, "delivery:"+eventID, time.Now().UTC()).Scan(&attempts)
	if err != nil {
		return 0, faults.Transient(fmt.Errorf("failed to record delivery of %s: %w", eventID, err))
	}
	return attempts, nil
}

var _ Ledger = (*PostgresLedger)(nil)
