package refunds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v81"

	"storefront-service/internal/orders"
	"storefront-service/internal/stores/kafka"
)

var ErrAlreadyRefunded = errors.New("order already refunded")

// OrderStore is the slice of the order store the refund workflow needs.
type OrderStore interface {
	GetOrderByID(ctx context.Context, orderID string) (orders.Order, error)
	SetPaymentIntent(ctx context.Context, orderID, paymentIntentID string) error
	MarkRefunded(ctx context.Context, orderID, note string) error
}

// Provider is the payment-provider surface for refunds.
type Provider interface {
	RetrieveSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID string, reason stripe.RefundReason) (*stripe.Refund, error)
}

// EventProducer publishes refund events. Optional.
type EventProducer interface {
	ProduceMessage(topic string, key, value []byte) error
}

// RefundInfo is the provider refund echoed back to the admin caller. Nil when
// the order was marked refunded without a provider call.
type RefundInfo struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
}

type Service struct {
	store    OrderStore
	provider Provider
	producer EventProducer
}

func NewService(store OrderStore, provider Provider, producer EventProducer) (*Service, error) {
	if store == nil || provider == nil {
		return nil, fmt.Errorf("order store and provider are required")
	}
	return &Service{store: store, provider: provider, producer: producer}, nil
}

// Refund resolves a payment reference for the order and issues the provider
// refund. Orders without any resolvable payment (manually created test
// orders) are marked refunded directly with an audit note.
func (s *Service) Refund(ctx context.Context, orderID, reason, traceId string) (*RefundInfo, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == orders.StatusRefunded {
		return nil, ErrAlreadyRefunded
	}

	paymentIntentID := order.StripePaymentIntent
	if paymentIntentID == "" && order.StripeSessionID != "" {
		paymentIntentID = s.derivePaymentIntent(ctx, order, traceId)
	}

	if paymentIntentID == "" {
		if err := s.store.MarkRefunded(ctx, orderID, "[Manual refund - no Stripe payment found]"); err != nil {
			return nil, fmt.Errorf("failed to mark order refunded: %w", err)
		}
		slog.Info("order marked refunded without provider refund",
			slog.String("Trace ID", traceId), slog.String("Order ID", orderID))
		s.publishRefunded(order, "")
		return nil, nil
	}

	refund, err := s.provider.CreateRefund(ctx, paymentIntentID, refundReason(reason))
	if err != nil {
		return nil, fmt.Errorf("provider refund failed: %w", err)
	}

	note := fmt.Sprintf("[Refunded via Stripe: %s]", refund.ID)
	if err := s.store.MarkRefunded(ctx, orderID, note); err != nil {
		// Money has already moved; this inconsistency must be surfaced loudly,
		// never swallowed.
		slog.Error("RECONCILIATION MISMATCH: provider refund issued but order status not persisted",
			slog.String("Trace ID", traceId), slog.String("Order ID", orderID),
			slog.String("Refund ID", refund.ID), slog.String("Error", err.Error()))
		return nil, fmt.Errorf("refund %s issued but order %s not updated: %w", refund.ID, orderID, err)
	}

	slog.Info("refund processed",
		slog.String("Trace ID", traceId), slog.String("Order ID", orderID),
		slog.String("Refund ID", refund.ID))
	s.publishRefunded(order, refund.ID)

	return &RefundInfo{
		ID:       refund.ID,
		Amount:   float64(refund.Amount) / 100,
		Currency: string(refund.Currency),
		Status:   string(refund.Status),
	}, nil
}

// derivePaymentIntent looks the payment reference up from the original
// checkout session and persists it back onto the order so the next refund
// attempt finds it locally. Lookup failures degrade to the skip path.
func (s *Service) derivePaymentIntent(ctx context.Context, order orders.Order, traceId string) string {
	session, err := s.provider.RetrieveSession(ctx, order.StripeSessionID)
	if err != nil {
		slog.Error("failed to retrieve checkout session",
			slog.String("Trace ID", traceId), slog.String("Order ID", order.ID),
			slog.String("Error", err.Error()))
		return ""
	}
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		return ""
	}

	paymentIntentID := session.PaymentIntent.ID
	if err := s.store.SetPaymentIntent(ctx, order.ID, paymentIntentID); err != nil {
		// The refund can still proceed with the derived reference.
		slog.Error("failed to persist derived payment intent",
			slog.String("Trace ID", traceId), slog.String("Order ID", order.ID),
			slog.String("Error", err.Error()))
	}
	return paymentIntentID
}

func (s *Service) publishRefunded(order orders.Order, refundID string) {
	if s.producer == nil {
		return
	}
	payload, err := json.Marshal(kafka.OrderRefundedEvent{
		OrderID:   order.ID,
		RefundID:  refundID,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("failed to marshal refund event", slog.String("Error", err.Error()))
		return
	}
	if err := s.producer.ProduceMessage(kafka.TopicOrderRefunded, []byte(order.ID), payload); err != nil {
		slog.Error("failed to produce refund event",
			slog.String("Error", err.Error()), slog.String("Order ID", order.ID))
	}
}

func refundReason(reason string) stripe.RefundReason {
	switch reason {
	case "duplicate":
		return stripe.RefundReasonDuplicate
	case "fraudulent":
		return stripe.RefundReasonFraudulent
	default:
		return stripe.RefundReasonRequestedByCustomer
	}
}
