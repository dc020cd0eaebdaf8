package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"

	"storefront-service/internal/cart"
)

// ErrEmptyCart is rejected before any provider call is made.
var ErrEmptyCart = errors.New("no items in checkout")

// SubscriptionSuffix marks the subscription variant of a catalog SKU.
const SubscriptionSuffix = "-sub"

// subscribeLabels are display-name decorations added by the shop UI; they
// must not leak into provider-side product names.
var subscribeLabels = []string{"(Subscribe)", "（订阅）"}

// Resolution is the catalog lookup result for a subscription item.
// Empty PriceID with a non-empty ProductID means the catalog product exists
// but has no active recurring price. Both empty means the product is unknown.
type Resolution struct {
	PriceID   string
	ProductID string
}

// CatalogResolver looks up provider-side billing primitives for a catalog
// product key (the item id with the subscription suffix stripped).
type CatalogResolver interface {
	ResolveRecurring(ctx context.Context, productKey string) (Resolution, error)
}

// BuildInput is everything the builder needs; it stays a pure function of
// this value plus the resolver's answers.
type BuildInput struct {
	Cart               cart.Cart
	UserID             string // empty for guest checkout
	Origin             string // request origin, for redirect targets and absolute image URLs
	HasDefaultShipping bool   // known customer with a saved default shipping address
}

// BuildSessionParams turns a cart into provider-ready checkout session
// parameters. Carts containing any subscription item produce a single
// subscription-mode session that also carries the one-time items, billed once
// on the first invoice; pure one-time carts produce a payment-mode session.
func BuildSessionParams(ctx context.Context, resolver CatalogResolver, in BuildInput) (*stripe.CheckoutSessionParams, error) {
	if err := in.Cart.Validate(); err != nil {
		if in.Cart.IsEmpty() {
			return nil, ErrEmptyCart
		}
		return nil, err
	}

	subscriptionItems, oneTimeItems := in.Cart.Partition()

	params := &stripe.CheckoutSessionParams{
		SuccessURL:               stripe.String(in.Origin + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:                stripe.String(in.Origin + "/?canceled=true"),
		BillingAddressCollection: stripe.String("required"),
	}
	if in.UserID != "" {
		params.AddMetadata("user_id", in.UserID)
	}

	if len(subscriptionItems) > 0 {
		if err := buildSubscriptionLineItems(ctx, resolver, params, subscriptionItems, in.Origin); err != nil {
			return nil, err
		}
		appendOneTimeLineItems(params, oneTimeItems, in.Origin)

		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		orderType := "subscription"
		if len(oneTimeItems) > 0 {
			orderType = "mixed"
		}
		params.AddMetadata("type", orderType)
		params.AddMetadata("has_one_time_items", fmt.Sprintf("%t", len(oneTimeItems) > 0))
	} else {
		appendOneTimeLineItems(params, oneTimeItems, in.Origin)

		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.AddMetadata("type", "payment")

		// Payment-mode sessions have no subscription to list items from later,
		// so the order contents travel in metadata as a fallback for the
		// reconciler.
		summary, err := itemSummaryJSON(oneTimeItems)
		if err != nil {
			return nil, err
		}
		params.AddMetadata("items", summary)
		params.AddMetadata("total", fmt.Sprintf("%.2f", in.Cart.Total()))

		if in.UserID != "" {
			// Link repeat purchases to one provider-side customer record.
			// Subscription mode always creates a customer on its own.
			params.CustomerCreation = stripe.String("always")
		}
	}

	if in.HasDefaultShipping {
		// Known customer, known address: skip address collection and inject a
		// single free flat-rate option.
		params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{
			{
				ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
					DisplayName: stripe.String("Free shipping"),
					Type:        stripe.String("fixed_amount"),
					FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
						Amount:   stripe.Int64(0),
						Currency: stripe.String(string(stripe.CurrencyUSD)),
					},
				},
			},
		}
	} else {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"US", "CA", "GB", "AU"}),
		}
	}

	return params, nil
}

// buildSubscriptionLineItems resolves each subscription item through the
// catalog fallback chain: existing recurring price, then an inline price on
// the known product, then a fully inline product and price.
func buildSubscriptionLineItems(ctx context.Context, resolver CatalogResolver, params *stripe.CheckoutSessionParams, items []cart.Item, origin string) error {
	for _, item := range items {
		productKey := strings.TrimSuffix(item.ID, SubscriptionSuffix)

		res, err := resolver.ResolveRecurring(ctx, productKey)
		if err != nil {
			return fmt.Errorf("failed to resolve catalog price for %s: %w", productKey, err)
		}

		li := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
		}
		switch {
		case res.PriceID != "":
			li.Price = stripe.String(res.PriceID)
		case res.ProductID != "":
			li.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				Product:    stripe.String(res.ProductID),
				UnitAmount: stripe.Int64(item.UnitPriceCents()),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String("month"),
				},
			}
		default:
			li.PriceData = &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				ProductData: productData(cleanSubscriptionName(item.Name), item.ImageURL, origin),
				UnitAmount:  stripe.Int64(item.UnitPriceCents()),
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String("month"),
				},
			}
		}
		params.LineItems = append(params.LineItems, li)
	}
	return nil
}

// appendOneTimeLineItems adds plain non-recurring line items. In a
// subscription-mode session these are billed once, on the first invoice only.
func appendOneTimeLineItems(params *stripe.CheckoutSessionParams, items []cart.Item, origin string) {
	for _, item := range items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(string(stripe.CurrencyUSD)),
				ProductData: productData(item.Name, item.ImageURL, origin),
				UnitAmount:  stripe.Int64(item.UnitPriceCents()),
			},
		})
	}
}

func productData(name, imageURL, origin string) *stripe.CheckoutSessionLineItemPriceDataProductDataParams {
	pd := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(name),
	}
	// The provider only accepts absolute image URLs.
	switch {
	case strings.HasPrefix(imageURL, "http"):
		pd.Images = stripe.StringSlice([]string{imageURL})
	case imageURL != "" && origin != "":
		pd.Images = stripe.StringSlice([]string{origin + imageURL})
	}
	return pd
}

func cleanSubscriptionName(name string) string {
	for _, label := range subscribeLabels {
		name = strings.ReplaceAll(name, label, "")
	}
	return strings.TrimSpace(name)
}

type itemSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

func itemSummaryJSON(items []cart.Item) (string, error) {
	summary := make([]itemSummary, 0, len(items))
	for _, item := range items {
		summary = append(summary, itemSummary{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.UnitPrice,
			Quantity: item.Quantity,
		})
	}
	out, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal item summary: %w", err)
	}
	return string(out), nil
}
