package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	p := NewPayment("bk-1", decimal.NewFromInt(500), "USD", "mock", 1)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, PaymentStatusPending, p.Status)
	assert.Equal(t, 1, p.AttemptCount)
	assert.False(t, p.IsTerminal())
	assert.NoError(t, p.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Payment)
		wantErr error
	}{
		{"missing booking", func(p *Payment) { p.BookingID = "" }, ErrInvalidBookingID},
		{"zero amount", func(p *Payment) { p.Amount = decimal.Zero }, ErrInvalidAmount},
		{"negative amount", func(p *Payment) { p.Amount = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"zero attempt", func(p *Payment) { p.AttemptCount = 0 }, ErrInvalidAttempt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPayment("bk-1", decimal.NewFromInt(500), "USD", "mock", 1)
			tt.mutate(p)
			assert.ErrorIs(t, p.Validate(), tt.wantErr)
		})
	}
}

func TestMarkSucceeded(t *testing.T) {
	p := NewPayment("bk-1", decimal.NewFromInt(500), "USD", "mock", 1)

	require.NoError(t, p.MarkSucceeded("txn-1", time.Now()))
	assert.Equal(t, PaymentStatusSuccess, p.Status)
	assert.Equal(t, "txn-1", p.TransactionID)
	assert.True(t, p.IsTerminal())

	assert.ErrorIs(t, p.MarkSucceeded("txn-2", time.Now()), ErrAttemptNotPending)
	assert.ErrorIs(t, p.MarkFailed("late", time.Now()), ErrAttemptNotPending)
}

func TestMarkFailed(t *testing.T) {
	p := NewPayment("bk-1", decimal.NewFromInt(500), "USD", "mock", 1)

	require.NoError(t, p.MarkFailed("card_declined", time.Now()))
	assert.Equal(t, PaymentStatusFailed, p.Status)
	assert.Equal(t, "card_declined", p.FailureReason)
	assert.True(t, p.IsTerminal())

	assert.ErrorIs(t, p.MarkSucceeded("txn-1", time.Now()), ErrAttemptNotPending)
}
