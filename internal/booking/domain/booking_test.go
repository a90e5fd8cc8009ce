package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBooking(t *testing.T) {
	b := NewBooking("u-1", "ROOM-101", 1, decimal.NewFromInt(500), "USD")

	require.NoError(t, b.Validate())
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, BookingStatusPending, b.Status)
	assert.EqualValues(t, 1, b.Version)
	assert.True(t, b.IsPending())
	assert.False(t, b.IsTerminal())
}

func TestBookingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Booking)
		wantErr error
	}{
		{"missing user", func(b *Booking) { b.UserID = " " }, ErrInvalidUserID},
		{"missing item", func(b *Booking) { b.ItemRef = "" }, ErrInvalidItemRef},
		{"zero quantity", func(b *Booking) { b.Quantity = 0 }, ErrInvalidQuantity},
		{"negative amount", func(b *Booking) { b.Amount = decimal.NewFromInt(-1) }, ErrInvalidAmount},
		{"bad status", func(b *Booking) { b.Status = "WAT" }, ErrInvalidBookingStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBooking("u-1", "ROOM-101", 1, decimal.NewFromInt(500), "USD")
			tt.mutate(b)
			assert.ErrorIs(t, b.Validate(), tt.wantErr)
		})
	}
}

func TestBookingConfirm(t *testing.T) {
	b := NewBooking("u-1", "ROOM-101", 1, decimal.NewFromInt(500), "USD")

	require.NoError(t, b.Confirm(time.Now()))
	assert.Equal(t, BookingStatusConfirmed, b.Status)
	require.NotNil(t, b.ConfirmedAt)
	assert.True(t, b.IsTerminal())

	assert.ErrorIs(t, b.Confirm(time.Now()), ErrAlreadyConfirmed)
	assert.ErrorIs(t, b.Cancel("late", time.Now()), ErrAlreadyConfirmed)
}

func TestBookingCancel(t *testing.T) {
	b := NewBooking("u-1", "ROOM-101", 1, decimal.NewFromInt(500), "USD")

	require.NoError(t, b.Cancel("inventory: insufficient", time.Now()))
	assert.Equal(t, BookingStatusCancelled, b.Status)
	assert.Equal(t, "inventory: insufficient", b.CancellationReason)
	require.NotNil(t, b.CancelledAt)

	// Terminal states never transition again.
	assert.ErrorIs(t, b.Confirm(time.Now()), ErrAlreadyCancelled)
	assert.ErrorIs(t, b.Cancel("again", time.Now()), ErrAlreadyCancelled)
}
