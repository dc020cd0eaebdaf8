package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"

	"storefront-service/internal/orders"
	"storefront-service/internal/stores/kafka"
)

// OrderStore is the slice of the order store the reconciler writes through.
type OrderStore interface {
	CreateOrder(ctx context.Context, o orders.Order) error
	GetOrderBySubscriptionID(ctx context.Context, subscriptionID string) (orders.Order, error)
	AppendNote(ctx context.Context, orderID, note string) error
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID, subscriptionStatus string) (int64, error)
}

// LineItemLister fetches the authoritative line-item listing for a completed
// checkout session from the provider.
type LineItemLister interface {
	ListLineItems(ctx context.Context, sessionID string) ([]*stripe.LineItem, error)
}

// EventProducer publishes order lifecycle events. Optional: a nil producer
// disables publishing.
type EventProducer interface {
	ProduceMessage(topic string, key, value []byte) error
}

// Reconciler turns asynchronous payment-provider events into persisted order
// state. Every handler is idempotent under redelivery and tolerant of event
// reordering.
type Reconciler struct {
	store    OrderStore
	sessions LineItemLister
	producer EventProducer
}

func NewReconciler(store OrderStore, sessions LineItemLister, producer EventProducer) (*Reconciler, error) {
	if store == nil || sessions == nil {
		return nil, fmt.Errorf("order store and session client are required")
	}
	return &Reconciler{store: store, sessions: sessions, producer: producer}, nil
}

// HandleEvent dispatches one verified provider event. A returned error means
// the delivery should be answered non-2xx so the provider redelivers;
// returning nil acknowledges the event.
func (r *Reconciler) HandleEvent(ctx context.Context, event stripe.Event, traceId string) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		return r.handleCheckoutCompleted(ctx, &session, traceId)

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("failed to unmarshal invoice: %w", err)
		}
		return r.handleInvoicePaid(ctx, &invoice, traceId)

	case "customer.subscription.updated", "customer.subscription.deleted":
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		return r.handleSubscriptionChange(ctx, &subscription, traceId)

	default:
		slog.Info("unhandled event type", slog.String("event_type", string(event.Type)))
		return nil
	}
}

func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession, traceId string) error {
	userID := session.Metadata["user_id"]
	if userID == "" {
		// The provider will not resend a materially different payload, so this
		// is a drop, not a retryable failure.
		slog.Warn("no user_id in session metadata, skipping order save",
			slog.String("Trace ID", traceId), slog.String("Session ID", session.ID))
		return nil
	}

	orderType := session.Metadata["type"]
	if orderType == "" {
		orderType = orders.OrderTypePayment
	}

	items, err := r.orderItems(ctx, session)
	if err != nil {
		return err
	}

	order := orders.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		StripeSessionID: session.ID,
		Status:          orders.StatusPaid,
		TotalAmount:     float64(session.AmountTotal) / 100,
		Currency:        currencyOrDefault(session.Currency),
		Items:           items,
		OrderType:       orderType,
	}
	if session.Customer != nil {
		order.StripeCustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		order.StripeSubscriptionID = session.Subscription.ID
	}
	if session.PaymentIntent != nil {
		order.StripePaymentIntent = session.PaymentIntent.ID
	}
	if session.CustomerDetails != nil {
		order.CustomerEmail = session.CustomerDetails.Email
	}
	if session.ShippingDetails != nil && session.ShippingDetails.Address != nil {
		order.ShippingAddress = &orders.Address{
			Name:       session.ShippingDetails.Name,
			Line1:      session.ShippingDetails.Address.Line1,
			Line2:      session.ShippingDetails.Address.Line2,
			City:       session.ShippingDetails.Address.City,
			State:      session.ShippingDetails.Address.State,
			PostalCode: session.ShippingDetails.Address.PostalCode,
			Country:    session.ShippingDetails.Address.Country,
		}
	}

	err = r.store.CreateOrder(ctx, order)
	if errors.Is(err, orders.ErrDuplicateSession) {
		slog.Info("order already exists for session, acknowledging redelivery",
			slog.String("Trace ID", traceId), slog.String("Session ID", session.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to save order for session %s: %w", session.ID, err)
	}

	slog.Info("order created from checkout session",
		slog.String("Trace ID", traceId), slog.String("Order ID", order.ID),
		slog.String("Session ID", session.ID), slog.String("Order Type", orderType))

	r.publish(kafka.TopicOrderCreated, order.ID, kafka.OrderCreatedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		OrderType:   order.OrderType,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		CreatedAt:   time.Now().UTC(),
	})
	return nil
}

// orderItems prefers the provider's line-item listing; for payment-mode
// sessions the metadata summary embedded at build time is the fallback when
// the listing is unavailable.
func (r *Reconciler) orderItems(ctx context.Context, session *stripe.CheckoutSession) ([]orders.OrderItem, error) {
	lineItems, err := r.sessions.ListLineItems(ctx, session.ID)
	if err == nil && len(lineItems) > 0 {
		out := make([]orders.OrderItem, 0, len(lineItems))
		for _, li := range lineItems {
			out = append(out, mapLineItem(li))
		}
		return out, nil
	}

	if summary := session.Metadata["items"]; summary != "" {
		var fallback []struct {
			ID       string  `json:"id"`
			Name     string  `json:"name"`
			Price    float64 `json:"price"`
			Quantity int     `json:"quantity"`
		}
		if jsonErr := json.Unmarshal([]byte(summary), &fallback); jsonErr == nil {
			out := make([]orders.OrderItem, 0, len(fallback))
			for _, it := range fallback {
				out = append(out, orders.OrderItem{
					ID:        it.ID,
					Name:      it.Name,
					UnitPrice: it.Price,
					Quantity:  it.Quantity,
				})
			}
			return out, nil
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list line items for session %s: %w", session.ID, err)
	}
	return nil, nil
}

func mapLineItem(li *stripe.LineItem) orders.OrderItem {
	item := orders.OrderItem{
		ID:       li.ID,
		Name:     li.Description,
		Quantity: int(li.Quantity),
	}
	if item.Name == "" {
		item.Name = "Product"
	}
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	// amount_total is the whole line; keep a true per-unit price so the order
	// total invariant holds.
	item.UnitPrice = float64(li.AmountTotal) / float64(item.Quantity) / 100
	if li.Price != nil {
		item.PriceID = li.Price.ID
		item.IsSubscription = li.Price.Type == stripe.PriceTypeRecurring
	}
	return item
}

func (r *Reconciler) handleInvoicePaid(ctx context.Context, invoice *stripe.Invoice, traceId string) error {
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		slog.Info("not a subscription invoice, skipping", slog.String("Invoice ID", invoice.ID))
		return nil
	}
	subscriptionID := invoice.Subscription.ID

	order, err := r.store.GetOrderBySubscriptionID(ctx, subscriptionID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		// The checkout.session.completed event may not have landed yet; that
		// delivery will carry the items, nothing to do here.
		slog.Warn("renewal invoice for unknown subscription",
			slog.String("Trace ID", traceId), slog.String("Subscription ID", subscriptionID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up order for subscription %s: %w", subscriptionID, err)
	}

	note := fmt.Sprintf("[Renewal invoice %s paid]", invoice.ID)
	if err := r.store.AppendNote(ctx, order.ID, note); err != nil {
		return fmt.Errorf("failed to record renewal on order %s: %w", order.ID, err)
	}

	slog.Info("subscription renewal recorded",
		slog.String("Trace ID", traceId), slog.String("Order ID", order.ID),
		slog.String("Invoice ID", invoice.ID))

	r.publish(kafka.TopicOrderRenewed, order.ID, kafka.OrderRenewedEvent{
		OrderID:        order.ID,
		SubscriptionID: subscriptionID,
		InvoiceID:      invoice.ID,
		CreatedAt:      time.Now().UTC(),
	})
	return nil
}

func (r *Reconciler) handleSubscriptionChange(ctx context.Context, subscription *stripe.Subscription, traceId string) error {
	newStatus := mapSubscriptionStatus(subscription.Status)

	n, err := r.store.UpdateSubscriptionStatus(ctx, subscription.ID, newStatus)
	if err != nil {
		return fmt.Errorf("failed to update subscription status for %s: %w", subscription.ID, err)
	}
	if n == 0 {
		// Tolerate the subscription event arriving before the order exists.
		slog.Warn("subscription change for unknown subscription",
			slog.String("Trace ID", traceId), slog.String("Subscription ID", subscription.ID))
		return nil
	}

	slog.Info("subscription status updated",
		slog.String("Trace ID", traceId), slog.String("Subscription ID", subscription.ID),
		slog.String("Status", newStatus))
	return nil
}

func mapSubscriptionStatus(s stripe.SubscriptionStatus) string {
	switch s {
	case stripe.SubscriptionStatusActive:
		return "active"
	case stripe.SubscriptionStatusCanceled:
		return "cancelled"
	case stripe.SubscriptionStatusPastDue:
		return "past_due"
	default:
		return "pending"
	}
}

func currencyOrDefault(c stripe.Currency) string {
	if c == "" {
		return string(stripe.CurrencyUSD)
	}
	return string(c)
}

func (r *Reconciler) publish(topic, orderID string, event any) {
	if r.producer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal order event", slog.String("Error", err.Error()))
		return
	}
	// Event publishing is best-effort: the order is already persisted and a
	// broker outage must not make the provider redeliver.
	if err := r.producer.ProduceMessage(topic, []byte(orderID), payload); err != nil {
		slog.Error("failed to produce order event",
			slog.String("Error", err.Error()), slog.String("Order ID", orderID))
	}
}
