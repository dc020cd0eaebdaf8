package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"storefront-service/internal/cart"
)

// fakeCatalog returns canned resolutions per product key.
type fakeCatalog struct {
	resolutions map[string]Resolution
	err         error
	calls       []string
}

func (f *fakeCatalog) ResolveRecurring(_ context.Context, productKey string) (Resolution, error) {
	f.calls = append(f.calls, productKey)
	if f.err != nil {
		return Resolution{}, f.err
	}
	return f.resolutions[productKey], nil
}

func oneTimeItem() cart.Item {
	return cart.Item{
		ID:        "foot-mask-trio",
		Name:      "Foot Mask Trio",
		UnitPrice: 12.50,
		Quantity:  1,
		ImageURL:  "/images/foot-mask.jpg",
	}
}

func subItem() cart.Item {
	return cart.Item{
		ID:             "wrecked-ralph-sub",
		Name:           "Wrecked Ralph (Subscribe)",
		UnitPrice:      4.99,
		Quantity:       2,
		ImageURL:       "https://cdn.example.com/ralph.jpg",
		IsSubscription: true,
	}
}

func TestBuild_EmptyCartRejected(t *testing.T) {
	_, err := BuildSessionParams(context.Background(), &fakeCatalog{}, BuildInput{})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestBuild_PaymentMode(t *testing.T) {
	in := BuildInput{
		Cart:   cart.Cart{Items: []cart.Item{oneTimeItem()}},
		UserID: "u1",
		Origin: "https://shop.example.com",
	}
	catalog := &fakeCatalog{}

	params, err := BuildSessionParams(context.Background(), catalog, in)
	require.NoError(t, err)

	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *params.Mode)
	assert.Empty(t, catalog.calls, "payment mode must not hit the catalog")

	require.Len(t, params.LineItems, 1)
	li := params.LineItems[0]
	require.NotNil(t, li.PriceData)
	assert.Nil(t, li.PriceData.Recurring)
	assert.Equal(t, int64(1250), *li.PriceData.UnitAmount)
	require.NotNil(t, li.PriceData.ProductData)
	assert.Equal(t, "https://shop.example.com/images/foot-mask.jpg", *li.PriceData.ProductData.Images[0])

	md := params.Metadata
	assert.Equal(t, "payment", md["type"])
	assert.Equal(t, "u1", md["user_id"])
	assert.JSONEq(t, `[{"id":"foot-mask-trio","name":"Foot Mask Trio","price":12.5,"quantity":1}]`, md["items"])
	assert.Equal(t, "12.50", md["total"])

	assert.Equal(t, "always", *params.CustomerCreation)
	assert.Equal(t, "https://shop.example.com/checkout/success?session_id={CHECKOUT_SESSION_ID}", *params.SuccessURL)
}

func TestBuild_MixedCart(t *testing.T) {
	in := BuildInput{
		Cart:   cart.Cart{Items: []cart.Item{subItem(), oneTimeItem()}},
		UserID: "u1",
		Origin: "https://shop.example.com",
	}
	catalog := &fakeCatalog{resolutions: map[string]Resolution{
		"wrecked-ralph": {PriceID: "price_123", ProductID: "wrecked-ralph"},
	}}

	params, err := BuildSessionParams(context.Background(), catalog, in)
	require.NoError(t, err)

	assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *params.Mode)
	require.Len(t, params.LineItems, 2)

	recurring := params.LineItems[0]
	assert.Equal(t, "price_123", *recurring.Price)
	assert.Nil(t, recurring.PriceData)

	once := params.LineItems[1]
	assert.Nil(t, once.Price)
	require.NotNil(t, once.PriceData)
	assert.Nil(t, once.PriceData.Recurring, "one-time item in a subscription session must not recur")

	assert.Equal(t, "mixed", params.Metadata["type"])
	assert.Equal(t, "true", params.Metadata["has_one_time_items"])
	assert.Nil(t, params.CustomerCreation, "subscription mode creates the customer itself")
}

func TestBuild_CatalogFallbackChain(t *testing.T) {
	cases := []struct {
		name       string
		resolution Resolution
		check      func(t *testing.T, li *stripe.CheckoutSessionLineItemParams)
	}{
		{
			name:       "existing recurring price is referenced",
			resolution: Resolution{PriceID: "price_abc", ProductID: "wrecked-ralph"},
			check: func(t *testing.T, li *stripe.CheckoutSessionLineItemParams) {
				assert.Equal(t, "price_abc", *li.Price)
				assert.Nil(t, li.PriceData)
			},
		},
		{
			name:       "known product without recurring price gets inline price",
			resolution: Resolution{ProductID: "wrecked-ralph"},
			check: func(t *testing.T, li *stripe.CheckoutSessionLineItemParams) {
				assert.Nil(t, li.Price)
				require.NotNil(t, li.PriceData)
				assert.Equal(t, "wrecked-ralph", *li.PriceData.Product)
				assert.Nil(t, li.PriceData.ProductData)
				assert.Equal(t, int64(499), *li.PriceData.UnitAmount)
				assert.Equal(t, "month", *li.PriceData.Recurring.Interval)
			},
		},
		{
			name:       "unknown product gets fully inline product and price",
			resolution: Resolution{},
			check: func(t *testing.T, li *stripe.CheckoutSessionLineItemParams) {
				assert.Nil(t, li.Price)
				require.NotNil(t, li.PriceData)
				assert.Nil(t, li.PriceData.Product)
				require.NotNil(t, li.PriceData.ProductData)
				assert.Equal(t, "Wrecked Ralph", *li.PriceData.ProductData.Name,
					"subscribe suffix must be stripped from the display name")
				assert.Equal(t, int64(499), *li.PriceData.UnitAmount)
				assert.Equal(t, "month", *li.PriceData.Recurring.Interval)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			catalog := &fakeCatalog{resolutions: map[string]Resolution{"wrecked-ralph": tc.resolution}}
			in := BuildInput{
				Cart:   cart.Cart{Items: []cart.Item{subItem()}},
				UserID: "u1",
				Origin: "https://shop.example.com",
			}

			params, err := BuildSessionParams(context.Background(), catalog, in)
			require.NoError(t, err)
			require.Equal(t, []string{"wrecked-ralph"}, catalog.calls,
				"catalog key is the item id without the subscription suffix")
			require.Len(t, params.LineItems, 1)
			assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
			tc.check(t, params.LineItems[0])
		})
	}
}

func TestBuild_PureSubscriptionMetadata(t *testing.T) {
	catalog := &fakeCatalog{resolutions: map[string]Resolution{
		"wrecked-ralph": {PriceID: "price_abc", ProductID: "wrecked-ralph"},
	}}
	in := BuildInput{
		Cart:   cart.Cart{Items: []cart.Item{subItem()}},
		UserID: "u1",
		Origin: "https://shop.example.com",
	}

	params, err := BuildSessionParams(context.Background(), catalog, in)
	require.NoError(t, err)
	assert.Equal(t, "subscription", params.Metadata["type"])
	assert.Equal(t, "false", params.Metadata["has_one_time_items"])
	// Subscription orders are reconstructed from the provider's line-item
	// listing, not metadata.
	assert.NotContains(t, params.Metadata, "items")
}

func TestBuild_ShippingCollection(t *testing.T) {
	in := BuildInput{
		Cart:   cart.Cart{Items: []cart.Item{oneTimeItem()}},
		UserID: "u1",
		Origin: "https://shop.example.com",
	}

	params, err := BuildSessionParams(context.Background(), &fakeCatalog{}, in)
	require.NoError(t, err)
	assert.Equal(t, "required", *params.BillingAddressCollection)
	require.NotNil(t, params.ShippingAddressCollection)
	assert.Empty(t, params.ShippingOptions)

	in.HasDefaultShipping = true
	params, err = BuildSessionParams(context.Background(), &fakeCatalog{}, in)
	require.NoError(t, err)
	assert.Nil(t, params.ShippingAddressCollection)
	require.Len(t, params.ShippingOptions, 1)
	rate := params.ShippingOptions[0].ShippingRateData
	assert.Equal(t, int64(0), *rate.FixedAmount.Amount)
	assert.Equal(t, "Free shipping", *rate.DisplayName)
}

func TestBuild_GuestCheckoutOmitsUserMetadata(t *testing.T) {
	in := BuildInput{
		Cart:   cart.Cart{Items: []cart.Item{oneTimeItem()}},
		Origin: "https://shop.example.com",
	}
	params, err := BuildSessionParams(context.Background(), &fakeCatalog{}, in)
	require.NoError(t, err)
	assert.NotContains(t, params.Metadata, "user_id")
	assert.Nil(t, params.CustomerCreation)
}

func TestBuild_ResolverErrorSurfaces(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("stripe unavailable")}
	in := BuildInput{
		Cart:   cart.Cart{Items: []cart.Item{subItem()}},
		Origin: "https://shop.example.com",
	}
	_, err := BuildSessionParams(context.Background(), catalog, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe unavailable")
}
