package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Outcome scripts one charge result on the mock gateway.
type Outcome struct {
	// Decline reports a card decline with Reason when true.
	Decline bool
	// Reason is the decline reason ("card_declined", "insufficient_funds").
	Reason string
	// Err, when set, is returned as a gateway error (outage, timeout).
	Err error
}

// Succeed is the outcome of an approved charge.
func Succeed() Outcome { return Outcome{} }

// Decline is the outcome of a card decline.
func Decline(reason string) Outcome { return Outcome{Decline: true, Reason: reason} }

// Fail is the outcome of a gateway-side error.
func Fail(err error) Outcome { return Outcome{Err: err} }

// MockGateway implements Gateway with per-booking scripted outcomes. Each
// charge for a booking consumes the next scripted outcome; an exhausted or
// absent script approves. Deterministic, for tests.
type MockGateway struct {
	mu      sync.Mutex
	scripts map[string][]Outcome
	// fallback applies to bookings without their own script.
	fallback []Outcome
	charges  map[string]int
}

// NewMockGateway creates an empty MockGateway; every charge succeeds until
// scripted otherwise.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		scripts: make(map[string][]Outcome),
		charges: make(map[string]int),
	}
}

// Script sets the outcome sequence for a booking's charges.
func (g *MockGateway) Script(bookingID string, outcomes ...Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[bookingID] = outcomes
}

// ScriptDefault sets the outcome sequence used by bookings that have no
// script of their own. Useful when the booking id is not known up front.
func (g *MockGateway) ScriptDefault(outcomes ...Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = outcomes
}

// Charges returns how many times a booking was charged.
func (g *MockGateway) Charges(bookingID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges[bookingID]
}

// Charge consumes the next scripted outcome for the booking.
func (g *MockGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	n := g.charges[req.BookingID]
	g.charges[req.BookingID] = n + 1
	script, ok := g.scripts[req.BookingID]
	if !ok {
		script = g.fallback
	}
	g.mu.Unlock()

	if n < len(script) {
		o := script[n]
		if o.Err != nil {
			return nil, o.Err
		}
		if o.Decline {
			return &ChargeResult{
				Success:       false,
				FailureReason: o.Reason,
				FailureCode:   o.Reason,
			}, nil
		}
	}

	return &ChargeResult{
		Success:       true,
		TransactionID: fmt.Sprintf("mock_txn_%s", uuid.New().String()[:8]),
	}, nil
}

// Name returns the gateway name.
func (g *MockGateway) Name() string {
	return "mock"
}

var _ Gateway = (*MockGateway)(nil)
