package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeGateway implements Gateway on Stripe payment intents.
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds the Stripe credentials.
type StripeGatewayConfig struct {
	SecretKey string
}

// NewStripeGateway creates a StripeGateway.
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil || config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = config.SecretKey
	return &StripeGateway{config: config}, nil
}

// Charge creates and inspects a payment intent. Stripe expects the amount in
// the smallest currency unit.
func (g *StripeGateway) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if req == nil {
		return nil, fmt.Errorf("charge request is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"payment_id": req.PaymentID,
			"booking_id": req.BookingID,
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			// A card error is a decline, not an outage.
			return &ChargeResult{
				Success:       false,
				FailureReason: string(stripeErr.Code),
				FailureCode:   string(stripeErr.Code),
			}, nil
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return &ChargeResult{Success: true, TransactionID: pi.ID}, nil
	case stripe.PaymentIntentStatusCanceled:
		return &ChargeResult{
			Success:       false,
			TransactionID: pi.ID,
			FailureReason: "payment_canceled",
			FailureCode:   "canceled",
		}, nil
	default:
		return &ChargeResult{
			Success:       false,
			TransactionID: pi.ID,
			FailureReason: "payment_requires_action",
			FailureCode:   string(pi.Status),
		}, nil
	}
}

// Name returns the gateway name.
func (g *StripeGateway) Name() string {
	return "stripe"
}

var _ Gateway = (*StripeGateway)(nil)
