// Package gateway defines the payment gateway port and its implementations.
// A declined charge is a business outcome (Result.Success false); an error
// return means the gateway itself was unreachable and the attempt counts as
// failed.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest describes one charge attempt.
type ChargeRequest struct {
	PaymentID string
	BookingID string
	Amount    decimal.Decimal
	Currency  string
	Metadata  map[string]string
}

// ChargeResult is the gateway's answer to a charge attempt.
type ChargeResult struct {
	Success       bool
	TransactionID string
	FailureReason string
	FailureCode   string
}

// Gateway charges bookings against an external payment provider.
type Gateway interface {
	// Charge runs one attempt. The caller bounds ctx with the gateway
	// timeout; expiry is reported as an error.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// Name identifies the provider in logs and payment records.
	Name() string
}
