package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/faults"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("broker unavailable")
		}
		return nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	boom := errors.New("still down")
	result := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, result.Err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, result.Attempts) // initial + 2 retries
	assert.Equal(t, boom, result.LastError)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	perm := faults.Permanent(errors.New("schema violation"))
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return perm
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, perm, result.Err)
}

func TestDo_ContextCancellationStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	cfg := &Config{MaxRetries: 100, InitialInterval: 50 * time.Millisecond, MaxInterval: 50 * time.Millisecond, Multiplier: 1}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, result.Err, ErrContextCanceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestInterval_GrowsAndCaps(t *testing.T) {
	r := New(&Config{
		MaxRetries:      10,
		InitialInterval: 2 * time.Second,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0, // deterministic
	})

	assert.Equal(t, 2*time.Second, r.Interval(0))
	assert.Equal(t, 4*time.Second, r.Interval(1))
	assert.Equal(t, 8*time.Second, r.Interval(2))
	assert.Equal(t, 60*time.Second, r.Interval(10)) // capped
}

func TestInterval_JitterStaysWithinCap(t *testing.T) {
	r := New(&Config{
		MaxRetries:      10,
		InitialInterval: 2 * time.Second,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	})

	for i := 0; i < 100; i++ {
		got := r.Interval(20)
		assert.LessOrEqual(t, got, 60*time.Second)
		assert.Greater(t, got, time.Duration(0))
	}
}

func TestDo_NegativeMaxRetriesRetriesUntilSuccess(t *testing.T) {
	calls := 0
	cfg := &Config{MaxRetries: -1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}
	result := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 8 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, 8, calls)
}
