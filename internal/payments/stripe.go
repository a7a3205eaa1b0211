package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeClient wraps stripe-go for the delivery-fee flow: the fee is held
// when a job is created and captured once delivery is confirmed. An admin
// override that reopens a job releases the hold.
type StripeClient struct{}

// NewStripeClient sets the package-level stripe key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// HoldFee creates a manual-capture PaymentIntent for the delivery fee and
// returns its ID.
func (s *StripeClient) HoldFee(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// CaptureFee finalizes a held fee after delivery confirmation.
func (s *StripeClient) CaptureFee(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// ReleaseFee cancels the hold when a job is reopened or abandoned.
func (s *StripeClient) ReleaseFee(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}
