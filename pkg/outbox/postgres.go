package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on an outbox_messages table:
//
//	outbox_messages(id uuid primary key, event_type text, correlation_id text,
//	    payload jsonb, created_at timestamptz, published_at timestamptz,
//	    publish_attempts int, next_attempt_at timestamptz)
//
// Rows are claimed with FOR UPDATE SKIP LOCKED so multiple publisher
// instances cooperate without extra coordination.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Append inserts messages in their own transaction.
func (s *PostgresStore) Append(ctx context.Context, msgs ...*Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.CreateTx(ctx, tx, msgs...); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit outbox transaction: %w", err)
	}
	return nil
}

// CreateTx inserts messages inside the caller's transaction. This is the
// co-commit path used by every domain repository.
func (s *PostgresStore) CreateTx(ctx context.Context, tx pgx.Tx, msgs ...*Message) error {
	query := `
		INSERT INTO outbox_messages (
			id, event_type, correlation_id, payload,
			created_at, publish_attempts, next_attempt_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, msg := range msgs {
		_, err := tx.Exec(ctx, query,
			msg.ID,
			msg.EventType,
			msg.CorrelationID,
			msg.Payload,
			msg.CreatedAt,
			msg.PublishAttempts,
			msg.NextAttemptAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox message %s: %w", msg.ID, err)
		}
	}
	return nil
}

// DrainBatch claims due rows under FOR UPDATE SKIP LOCKED, publishes them in
// created_at order and records outcomes within the same transaction.
func (s *PostgresStore) DrainBatch(ctx context.Context, req DrainRequest) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin drain transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The NOT EXISTS keeps a row out of the batch while an earlier row of
	// its correlation id is backed off past next_attempt_at: that head is
	// absent from the batch, so the in-batch blocking below cannot see it.
	// Earlier rows that are due sort ahead of their successors and block
	// them through the in-batch map when they fail.
	rows, err := tx.Query(ctx, `
		SELECT id, event_type, correlation_id, payload,
		       created_at, publish_attempts, next_attempt_at
		FROM outbox_messages
		WHERE published_at IS NULL AND next_attempt_at <= $1
		  AND (correlation_id = '' OR NOT EXISTS (
			SELECT 1 FROM outbox_messages o2
			WHERE o2.correlation_id = outbox_messages.correlation_id
			  AND o2.published_at IS NULL
			  AND o2.next_attempt_at > $1
			  AND o2.created_at < outbox_messages.created_at
		  ))
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, req.Now, req.Limit)
	if err != nil {
		return 0, fmt.Errorf("failed to claim outbox batch: %w", err)
	}

	msgs, err := scanMessages(rows)
	if err != nil {
		return 0, err
	}

	published := 0
	// A failed row blocks every later row of its correlation id so causal
	// order within one business transaction is preserved.
	blocked := make(map[string]bool)

	for _, msg := range msgs {
		if msg.CorrelationID != "" && blocked[msg.CorrelationID] {
			continue
		}

		if pubErr := req.Publish(ctx, msg); pubErr != nil {
			msg.MarkAttemptFailed(req.Now.Add(req.Backoff(msg.PublishAttempts + 1)))
			if _, err := tx.Exec(ctx, `
				UPDATE outbox_messages
				SET publish_attempts = $2, next_attempt_at = $3
				WHERE id = $1
			`, msg.ID, msg.PublishAttempts, msg.NextAttemptAt); err != nil {
				return published, fmt.Errorf("failed to record publish failure for %s: %w", msg.ID, err)
			}
			if msg.CorrelationID != "" {
				blocked[msg.CorrelationID] = true
			}
			continue
		}

		// The crash window between broker ack and this update is why
		// delivery is at-least-once.
		if _, err := tx.Exec(ctx, `
			UPDATE outbox_messages SET published_at = $2 WHERE id = $1
		`, msg.ID, time.Now().UTC()); err != nil {
			return published, fmt.Errorf("failed to mark %s published: %w", msg.ID, err)
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return published, fmt.Errorf("failed to commit drain transaction: %w", err)
	}
	return published, nil
}

// PendingCount returns the number of unpublished rows.
func (s *PostgresStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_messages WHERE published_at IS NULL`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox messages: %w", err)
	}
	return count, nil
}

func scanMessages(rows pgx.Rows) ([]*Message, error) {
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg := &Message{}
		err := rows.Scan(
			&msg.ID,
			&msg.EventType,
			&msg.CorrelationID,
			&msg.Payload,
			&msg.CreatedAt,
			&msg.PublishAttempts,
			&msg.NextAttemptAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return msgs, nil
}

var _ Store = (*PostgresStore)(nil)
