package reconcile

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// StripeSessions lists line items straight from the provider so order
// contents never come from a cached copy.
type StripeSessions struct{}

func (StripeSessions) ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	iter := session.ListLineItems(params)
	var out []*stripe.LineItem
	for iter.Next() {
		out = append(out, iter.LineItem())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	return out, nil
}
