package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrOrderNotFound = errors.New("order not found")

	// ErrDuplicateSession means an order for this checkout session already
	// exists. Webhook redelivery hits this path and must be acked, not retried.
	ErrDuplicateSession = errors.New("order for checkout session already exists")

	// ErrStatusConflict means the order's persisted status no longer matches
	// the status the caller read before requesting the change.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

const uniqueViolation = "23505"

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

const orderColumns = `id, user_id, stripe_session_id, stripe_customer_id, stripe_subscription_id,
	       stripe_payment_intent, status, previous_status, subscription_status, total_amount,
	       currency, items, order_type, tracking_number, customer_email, shipping_address,
	       notes, created_at, updated_at`

// CreateOrder inserts the order exactly once per checkout session. The unique
// constraint on stripe_session_id is the idempotency guard against duplicate
// webhook delivery.
func (c *Conf) CreateOrder(ctx context.Context, o Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	var shippingJSON []byte
	if o.ShippingAddress != nil {
		shippingJSON, err = json.Marshal(o.ShippingAddress)
		if err != nil {
			return fmt.Errorf("failed to marshal shipping address: %w", err)
		}
	}

	query := `
		INSERT INTO orders (id, user_id, stripe_session_id, stripe_customer_id, stripe_subscription_id,
		                    stripe_payment_intent, status, subscription_status, total_amount, currency,
		                    items, order_type, customer_email, shipping_address, notes, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`
	_, err = c.db.ExecContext(ctx, query,
		o.ID, o.UserID, o.StripeSessionID, o.StripeCustomerID, o.StripeSubscriptionID,
		o.StripePaymentIntent, o.Status, o.SubscriptionStatus, o.TotalAmount, o.Currency,
		itemsJSON, o.OrderType, o.CustomerEmail, shippingJSON, o.Notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (c *Conf) GetOrderByID(ctx context.Context, orderID string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return c.scanOrder(c.db.QueryRowContext(ctx, query, orderID))
}

func (c *Conf) GetOrderBySubscriptionID(ctx context.Context, subscriptionID string) (Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE stripe_subscription_id = $1
	          ORDER BY created_at ASC LIMIT 1`
	return c.scanOrder(c.db.QueryRowContext(ctx, query, subscriptionID))
}

func (c *Conf) ListOrdersByUser(ctx context.Context, userID string) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	return c.queryOrders(ctx, query, userID)
}

// ListOrders returns orders across all users, optionally filtered by status.
// Admin-only caller.
func (c *Conf) ListOrders(ctx context.Context, status Status, limit, offset int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	if status != "" {
		query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1
		          ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		return c.queryOrders(ctx, query, status, limit, offset)
	}
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return c.queryOrders(ctx, query, limit, offset)
}

// UpdateStatus applies a validated transition as a conditional update: the
// write only lands if the row still holds the status the caller read, so a
// racing admin update or refund request loses cleanly instead of being
// silently overwritten.
func (c *Conf) UpdateStatus(ctx context.Context, orderID string, from, to Status, trackingNumber string) error {
	if err := ValidateTransition(from, to, trackingNumber); err != nil {
		return err
	}

	var res sql.Result
	var err error
	if to == StatusShipped {
		query := `UPDATE orders SET status = $1, tracking_number = $2, updated_at = NOW()
		          WHERE id = $3 AND status = $4`
		res, err = c.db.ExecContext(ctx, query, to, trackingNumber, orderID, from)
	} else {
		query := `UPDATE orders SET status = $1, updated_at = NOW()
		          WHERE id = $2 AND status = $3`
		res, err = c.db.ExecContext(ctx, query, to, orderID, from)
	}
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return requireOneRow(res)
}

// RequestRefund moves an order to refund_requested on behalf of its owner,
// recording the state it came from so a denial can revert to it. A second
// request while one is pending finds no matching row and conflicts.
func (c *Conf) RequestRefund(ctx context.Context, orderID, userID string) error {
	query := `UPDATE orders
	          SET previous_status = status, status = $1, updated_at = NOW()
	          WHERE id = $2 AND user_id = $3
	            AND status IN ($4, $5, $6, $7)`
	res, err := c.db.ExecContext(ctx, query, StatusRefundRequested, orderID, userID,
		StatusPaid, StatusProcessing, StatusShipped, StatusDelivered)
	if err != nil {
		return fmt.Errorf("failed to request refund: %w", err)
	}
	return requireOneRow(res)
}

// DenyRefund reverts a pending refund request to the status the order held
// before the request. Rows written before previous_status existed fall back
// to paid.
func (c *Conf) DenyRefund(ctx context.Context, orderID string) error {
	query := `UPDATE orders
	          SET status = COALESCE(previous_status, $1), previous_status = NULL, updated_at = NOW()
	          WHERE id = $2 AND status = $3`
	res, err := c.db.ExecContext(ctx, query, StatusPaid, orderID, StatusRefundRequested)
	if err != nil {
		return fmt.Errorf("failed to deny refund: %w", err)
	}
	return requireOneRow(res)
}

// MarkRefunded sets the terminal refunded status and appends the audit note
// in the same write. It refuses orders that are already refunded.
func (c *Conf) MarkRefunded(ctx context.Context, orderID, note string) error {
	query := `UPDATE orders
	          SET status = $1, previous_status = NULL, notes = notes || $2, updated_at = NOW()
	          WHERE id = $3 AND status <> $1`
	res, err := c.db.ExecContext(ctx, query, StatusRefunded, "\n"+note, orderID)
	if err != nil {
		return fmt.Errorf("failed to mark order refunded: %w", err)
	}
	return requireOneRow(res)
}

// AppendNote adds a line to the order's append-only audit log.
func (c *Conf) AppendNote(ctx context.Context, orderID, note string) error {
	query := `UPDATE orders SET notes = notes || $1, updated_at = NOW() WHERE id = $2`
	res, err := c.db.ExecContext(ctx, query, "\n"+note, orderID)
	if err != nil {
		return fmt.Errorf("failed to append order note: %w", err)
	}
	return requireOneRow(res)
}

// SetPaymentIntent persists a payment reference derived after order creation,
// so later refund lookups do not have to hit the provider again.
func (c *Conf) SetPaymentIntent(ctx context.Context, orderID, paymentIntentID string) error {
	query := `UPDATE orders SET stripe_payment_intent = $1, updated_at = NOW() WHERE id = $2`
	res, err := c.db.ExecContext(ctx, query, paymentIntentID, orderID)
	if err != nil {
		return fmt.Errorf("failed to set payment intent: %w", err)
	}
	return requireOneRow(res)
}

// UpdateSubscriptionStatus upserts the provider-side subscription state on
// every order tied to the subscription. It is commutative and keyed by
// subscription id, so event ordering does not matter. Returns the number of
// rows touched; zero is not an error because the subscription's order may
// not exist yet when events arrive out of order.
func (c *Conf) UpdateSubscriptionStatus(ctx context.Context, subscriptionID, subscriptionStatus string) (int64, error) {
	query := `UPDATE orders SET subscription_status = $1, updated_at = NOW()
	          WHERE stripe_subscription_id = $2`
	res, err := c.db.ExecContext(ctx, query, subscriptionStatus, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("failed to update subscription status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (c *Conf) scanOrder(row rowScanner) (Order, error) {
	var o Order
	var sessionID, subscriptionID, paymentIntent, previousStatus, subscriptionStatus sql.NullString
	var trackingNumber, customerEmail sql.NullString
	var itemsJSON, shippingJSON []byte

	err := row.Scan(
		&o.ID, &o.UserID, &sessionID, &o.StripeCustomerID, &subscriptionID,
		&paymentIntent, &o.Status, &previousStatus, &subscriptionStatus, &o.TotalAmount,
		&o.Currency, &itemsJSON, &o.OrderType, &trackingNumber, &customerEmail, &shippingJSON,
		&o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("failed to scan order: %w", err)
	}

	o.StripeSessionID = sessionID.String
	o.StripeSubscriptionID = subscriptionID.String
	o.StripePaymentIntent = paymentIntent.String
	o.PreviousStatus = Status(previousStatus.String)
	o.SubscriptionStatus = subscriptionStatus.String
	o.TrackingNumber = trackingNumber.String
	o.CustomerEmail = customerEmail.String

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return Order{}, fmt.Errorf("failed to unmarshal order items: %w", err)
	}
	if len(shippingJSON) > 0 {
		var addr Address
		if err := json.Unmarshal(shippingJSON, &addr); err != nil {
			return Order{}, fmt.Errorf("failed to unmarshal shipping address: %w", err)
		}
		o.ShippingAddress = &addr
	}
	return o, nil
}

func (c *Conf) queryOrders(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := c.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	return out, nil
}
