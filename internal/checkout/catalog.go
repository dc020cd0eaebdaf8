package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/price"
	"github.com/stripe/stripe-go/v81/product"
)

// StripeCatalog resolves catalog product keys against Stripe's pre-registered
// products and prices. Referencing an existing recurring price keeps
// provider-side reporting continuous across checkouts.
type StripeCatalog struct{}

func (StripeCatalog) ResolveRecurring(ctx context.Context, productKey string) (Resolution, error) {
	listParams := &stripe.PriceListParams{
		Product: stripe.String(productKey),
		Active:  stripe.Bool(true),
		Type:    stripe.String(string(stripe.PriceTypeRecurring)),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := price.List(listParams)
	for iter.Next() {
		return Resolution{PriceID: iter.Price().ID, ProductID: productKey}, nil
	}
	if err := iter.Err(); err != nil {
		if isResourceMissing(err) {
			return Resolution{}, nil
		}
		return Resolution{}, fmt.Errorf("failed to list prices for %s: %w", productKey, err)
	}

	// No active recurring price. The product may still exist, in which case an
	// ad hoc price gets attached to it instead of a throwaway product.
	prod, err := product.Get(productKey, &stripe.ProductParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		if isResourceMissing(err) {
			return Resolution{}, nil
		}
		return Resolution{}, fmt.Errorf("failed to fetch product %s: %w", productKey, err)
	}
	if !prod.Active {
		return Resolution{}, nil
	}
	return Resolution{ProductID: prod.ID}, nil
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}
