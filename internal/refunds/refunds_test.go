package refunds

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"storefront-service/internal/orders"
)

type fakeStore struct {
	orders         map[string]*orders.Order
	markErr        error
	refundedNotes  map[string]string
	paymentIntents map[string]string
}

func newFakeStore(seed ...orders.Order) *fakeStore {
	f := &fakeStore{
		orders:         map[string]*orders.Order{},
		refundedNotes:  map[string]string{},
		paymentIntents: map[string]string{},
	}
	for i := range seed {
		o := seed[i]
		f.orders[o.ID] = &o
	}
	return f
}

func (f *fakeStore) GetOrderByID(_ context.Context, orderID string) (orders.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return *o, nil
}

func (f *fakeStore) SetPaymentIntent(_ context.Context, orderID, paymentIntentID string) error {
	f.paymentIntents[orderID] = paymentIntentID
	f.orders[orderID].StripePaymentIntent = paymentIntentID
	return nil
}

func (f *fakeStore) MarkRefunded(_ context.Context, orderID, note string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.orders[orderID].Status = orders.StatusRefunded
	f.refundedNotes[orderID] = note
	return nil
}

type fakeProvider struct {
	session     *stripe.CheckoutSession
	sessionErr  error
	refund      *stripe.Refund
	refundErr   error
	refundCalls int
}

func (f *fakeProvider) RetrieveSession(context.Context, string) (*stripe.CheckoutSession, error) {
	return f.session, f.sessionErr
}

func (f *fakeProvider) CreateRefund(_ context.Context, _ string, reason stripe.RefundReason) (*stripe.Refund, error) {
	f.refundCalls++
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return f.refund, nil
}

func paidOrder() orders.Order {
	return orders.Order{
		ID:                  "order-1",
		UserID:              "u1",
		StripeSessionID:     "cs_1",
		StripePaymentIntent: "pi_1",
		Status:              orders.StatusRefundRequested,
		TotalAmount:         9.98,
		Currency:            "usd",
	}
}

func TestRefund_Success(t *testing.T) {
	store := newFakeStore(paidOrder())
	provider := &fakeProvider{refund: &stripe.Refund{
		ID: "re_1", Amount: 998, Currency: stripe.CurrencyUSD, Status: stripe.RefundStatusSucceeded,
	}}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	info, err := svc.Refund(context.Background(), "order-1", "requested_by_customer", "t1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "re_1", info.ID)
	assert.InDelta(t, 9.98, info.Amount, 0.001)

	assert.Equal(t, orders.StatusRefunded, store.orders["order-1"].Status)
	assert.Contains(t, store.refundedNotes["order-1"], "re_1")
}

func TestRefund_SecondCallRejectedWithoutProviderCall(t *testing.T) {
	store := newFakeStore(paidOrder())
	provider := &fakeProvider{refund: &stripe.Refund{ID: "re_1", Amount: 998, Currency: stripe.CurrencyUSD}}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), "order-1", "", "t1")
	require.NoError(t, err)
	require.Equal(t, 1, provider.refundCalls)

	_, err = svc.Refund(context.Background(), "order-1", "", "t2")
	require.ErrorIs(t, err, ErrAlreadyRefunded)
	assert.Equal(t, 1, provider.refundCalls, "second call must not reach the provider")
}

func TestRefund_NoPaymentReferenceSkipsProvider(t *testing.T) {
	order := paidOrder()
	order.StripePaymentIntent = ""
	order.StripeSessionID = "" // manually created test order
	store := newFakeStore(order)
	provider := &fakeProvider{}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	info, err := svc.Refund(context.Background(), "order-1", "", "t1")
	require.NoError(t, err)
	assert.Nil(t, info, "no provider refund to report")
	assert.Zero(t, provider.refundCalls)
	assert.Equal(t, orders.StatusRefunded, store.orders["order-1"].Status)
	assert.Contains(t, store.refundedNotes["order-1"], "no Stripe payment found")
}

func TestRefund_DerivesPaymentIntentFromSession(t *testing.T) {
	order := paidOrder()
	order.StripePaymentIntent = ""
	store := newFakeStore(order)
	provider := &fakeProvider{
		session: &stripe.CheckoutSession{
			ID:            "cs_1",
			PaymentIntent: &stripe.PaymentIntent{ID: "pi_derived"},
		},
		refund: &stripe.Refund{ID: "re_2", Amount: 998, Currency: stripe.CurrencyUSD},
	}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	info, err := svc.Refund(context.Background(), "order-1", "", "t1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "pi_derived", store.paymentIntents["order-1"],
		"derived reference must be persisted for future lookups")
}

func TestRefund_SessionLookupFailureFallsBackToSkipPath(t *testing.T) {
	order := paidOrder()
	order.StripePaymentIntent = ""
	store := newFakeStore(order)
	provider := &fakeProvider{sessionErr: errors.New("stripe down")}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	info, err := svc.Refund(context.Background(), "order-1", "", "t1")
	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Zero(t, provider.refundCalls)
	assert.Equal(t, orders.StatusRefunded, store.orders["order-1"].Status)
}

func TestRefund_ProviderErrorSurfaces(t *testing.T) {
	store := newFakeStore(paidOrder())
	provider := &fakeProvider{refundErr: &stripe.Error{Msg: "charge already refunded", Type: stripe.ErrorTypeInvalidRequest}}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), "order-1", "", "t1")
	require.Error(t, err)
	assert.NotEqual(t, orders.StatusRefunded, store.orders["order-1"].Status)
}

func TestRefund_PersistFailureAfterProviderRefundIsSurfaced(t *testing.T) {
	store := newFakeStore(paidOrder())
	store.markErr = errors.New("db down")
	provider := &fakeProvider{refund: &stripe.Refund{ID: "re_3", Amount: 998, Currency: stripe.CurrencyUSD}}
	svc, err := NewService(store, provider, nil)
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), "order-1", "", "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "re_3", "mismatch error must reference the issued refund")
}

func TestRefund_OrderNotFound(t *testing.T) {
	svc, err := NewService(newFakeStore(), &fakeProvider{}, nil)
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), "missing", "", "t1")
	require.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestRefundReasonMapping(t *testing.T) {
	assert.Equal(t, stripe.RefundReasonDuplicate, refundReason("duplicate"))
	assert.Equal(t, stripe.RefundReasonFraudulent, refundReason("fraudulent"))
	assert.Equal(t, stripe.RefundReasonRequestedByCustomer, refundReason(""))
	assert.Equal(t, stripe.RefundReasonRequestedByCustomer, refundReason("whatever"))
}
