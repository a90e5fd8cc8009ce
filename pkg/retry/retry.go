// Package retry implements exponential backoff with jitter. It is used by
// the outbox publisher, the broker connect path and the payment retry
// schedule.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/faults"
)

// Common errors
var (
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
	ErrContextCanceled    = errors.New("context canceled during retry")
)

// Config contains retry configuration.
type Config struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries,
	// just the initial attempt). Negative means retry forever.
	MaxRetries int
	// InitialInterval is the initial backoff interval.
	InitialInterval time.Duration
	// MaxInterval caps the backoff interval.
	MaxInterval time.Duration
	// Multiplier is applied to the interval after each attempt.
	Multiplier float64
	// JitterFactor (0-1) randomizes the interval by ±factor.
	JitterFactor float64
}

// DefaultConfig returns the default retry configuration:
// 2s, 4s, 8s, ... capped at 60s, ±10% jitter, 5 retries.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:      5,
		InitialInterval: 2 * time.Second,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Operation is the function to be retried.
type Operation func(ctx context.Context) error

// Result contains the outcome of a retried operation.
type Result struct {
	// Err is the final error (nil on success).
	Err error
	// Attempts is the total number of attempts made, including the first.
	Attempts int
	// LastError is the error from the last attempt.
	LastError error
}

// Retrier executes operations with exponential backoff.
type Retrier struct {
	config *Config
}

// New creates a Retrier, applying defaults for zero values.
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 2 * time.Second
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = 60 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.JitterFactor < 0 {
		config.JitterFactor = 0
	}
	if config.JitterFactor > 1 {
		config.JitterFactor = 1
	}
	return &Retrier{config: config}
}

// Callback is invoked before each backoff wait.
type Callback func(attempt int, err error, nextInterval time.Duration)

// Do executes op, retrying transient failures. Permanent faults (per
// pkg/faults) stop immediately.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	return r.DoWithCallback(ctx, op, nil)
}

// DoWithCallback is Do with a per-retry callback.
func (r *Retrier) DoWithCallback(ctx context.Context, op Operation, callback Callback) *Result {
	result := &Result{}
	var lastErr error

	for attempt := 0; r.config.MaxRetries < 0 || attempt <= r.config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		if ctx.Err() != nil {
			result.Err = ErrContextCanceled
			result.LastError = lastErr
			return result
		}

		err := op(ctx)
		if err == nil {
			return result
		}
		lastErr = err

		if faults.IsPermanent(err) {
			result.Err = err
			result.LastError = err
			return result
		}

		if r.config.MaxRetries >= 0 && attempt == r.config.MaxRetries {
			break
		}

		interval := r.Interval(attempt)
		if callback != nil {
			callback(attempt+1, err, interval)
		}

		select {
		case <-ctx.Done():
			result.Err = ErrContextCanceled
			result.LastError = lastErr
			return result
		case <-time.After(interval):
		}
	}

	result.Err = ErrMaxRetriesExceeded
	result.LastError = lastErr
	return result
}

// Interval returns the backoff interval for the given zero-based attempt
// number: initial * multiplier^attempt, jittered and capped.
func (r *Retrier) Interval(attempt int) time.Duration {
	interval := float64(r.config.InitialInterval) * math.Pow(r.config.Multiplier, float64(attempt))

	// Cap before jitter so the cap is a hard ceiling on average.
	if interval > float64(r.config.MaxInterval) {
		interval = float64(r.config.MaxInterval)
	}

	if r.config.JitterFactor > 0 {
		jitter := interval * r.config.JitterFactor
		interval = interval + (rand.Float64()*2-1)*jitter
	}

	if interval < 0 {
		interval = float64(r.config.InitialInterval)
	}
	if interval > float64(r.config.MaxInterval) {
		interval = float64(r.config.MaxInterval)
	}

	return time.Duration(interval)
}

// Do is a convenience wrapper that creates a retrier and runs op.
func Do(ctx context.Context, config *Config, op Operation) *Result {
	return New(config).Do(ctx, op)
}
