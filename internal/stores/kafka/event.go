package kafka

import "time"

const (
	TopicOrderCreated  = `order-service.order-created`
	TopicOrderRenewed  = `order-service.order-renewed`
	TopicOrderRefunded = `order-service.order-refunded`
)

// OrderCreatedEvent is published once per reconciled checkout session.
type OrderCreatedEvent struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	OrderType   string    `json:"order_type"`
	TotalAmount float64   `json:"total_amount"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrderRenewedEvent records a paid renewal invoice on a subscription order.
type OrderRenewedEvent struct {
	OrderID        string    `json:"order_id"`
	SubscriptionID string    `json:"subscription_id"`
	InvoiceID      string    `json:"invoice_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// OrderRefundedEvent is published after an order reaches the refunded state.
type OrderRefundedEvent struct {
	OrderID   string    `json:"order_id"`
	RefundID  string    `json:"refund_id"` // empty when no provider refund was issued
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}
