package orders

import "time"

// Order is the durable record of a completed purchase. It is created exactly
// once per Stripe checkout session and never hard-deleted; refunds and
// cancellations are status transitions.
type Order struct {
	ID                   string      `json:"id"`
	UserID               string      `json:"user_id"`
	StripeSessionID      string      `json:"stripe_session_id"`      // empty for manually created test orders
	StripeCustomerID     string      `json:"stripe_customer_id"`
	StripeSubscriptionID string      `json:"stripe_subscription_id"` // empty for one-time orders
	StripePaymentIntent  string      `json:"stripe_payment_intent"`
	Status               Status      `json:"status"`
	PreviousStatus       Status      `json:"previous_status,omitempty"` // state before refund_requested
	SubscriptionStatus   string      `json:"subscription_status,omitempty"`
	TotalAmount          float64     `json:"total_amount"`
	Currency             string      `json:"currency"`
	Items                []OrderItem `json:"items"`
	OrderType            string      `json:"order_type"` // payment, subscription or mixed
	TrackingNumber       string      `json:"tracking_number,omitempty"`
	CustomerEmail        string      `json:"customer_email"`
	ShippingAddress      *Address    `json:"shipping_address,omitempty"`
	Notes                string      `json:"notes,omitempty"` // append-only audit log
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// OrderItem is one captured line of an order. UnitPrice is a true per-unit
// price so that TotalAmount == sum(UnitPrice * Quantity) holds at creation.
type OrderItem struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	UnitPrice      float64 `json:"price"`
	Quantity       int     `json:"quantity"`
	PriceID        string  `json:"price_id,omitempty"`
	IsSubscription bool    `json:"is_subscription"`
}

// Address is a captured shipping address as reported by the payment provider
// at checkout completion.
type Address struct {
	Name       string `json:"name,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

const (
	OrderTypePayment      = "payment"
	OrderTypeSubscription = "subscription"
	OrderTypeMixed        = "mixed"
)
