package refunds

import (
	"context"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/refund"
)

// StripeProvider issues real refunds against Stripe.
type StripeProvider struct{}

func (StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	return session.Get(sessionID, params)
}

func (StripeProvider) CreateRefund(ctx context.Context, paymentIntentID string, reason stripe.RefundReason) (*stripe.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(reason)),
	}
	params.Context = ctx
	return refund.New(params)
}
