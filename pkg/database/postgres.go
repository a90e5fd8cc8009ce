// Package database provides the shared pgx connection pool wrapper with
// OpenTelemetry tracing and bounded startup retry.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/config"
)

// Options control pool construction beyond the connection settings.
type Options struct {
	// EnableTracing attaches the otelpgx query tracer.
	EnableTracing bool
	// MaxRetries bounds the startup connect loop.
	MaxRetries int
	// RetryInterval is the sleep between connect attempts.
	RetryInterval time.Duration
}

// DefaultOptions returns the default pool options.
func DefaultOptions() *Options {
	return &Options{
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
}

// PostgresDB wraps pgxpool.Pool.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a connection pool from the service's database config,
// retrying the initial connect a bounded number of times.
func NewPostgres(ctx context.Context, cfg *config.DatabaseConfig, opts *Options) (*PostgresDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	if opts.EnableTracing {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer(
			otelpgx.WithIncludeQueryParameters(),
		)
	}

	var pool *pgxpool.Pool
	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.RetryInterval):
			}
		}

		pool, lastErr = pgxpool.NewWithConfig(ctx, poolConfig)
		if lastErr != nil {
			continue
		}
		if lastErr = pool.Ping(ctx); lastErr != nil {
			pool.Close()
			continue
		}
		return &PostgresDB{pool: pool}, nil
	}

	return nil, fmt.Errorf("failed to connect to postgres after %d attempts: %w", opts.MaxRetries+1, lastErr)
}

// Pool returns the underlying pgxpool.Pool.
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping checks if the database connection is alive.
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// BeginTx starts a new transaction.
func (db *PostgresDB) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

// HealthCheck performs a bounded round-trip check.
func (db *PostgresDB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes all connections in the pool.
func (db *PostgresDB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
