package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"storefront-service/internal/orders"
	"storefront-service/internal/reconcile"
)

type stubStore struct{}

func (stubStore) CreateOrder(context.Context, orders.Order) error { return nil }
func (stubStore) GetOrderBySubscriptionID(context.Context, string) (orders.Order, error) {
	return orders.Order{}, orders.ErrOrderNotFound
}
func (stubStore) AppendNote(context.Context, string, string) error { return nil }
func (stubStore) UpdateSubscriptionStatus(context.Context, string, string) (int64, error) {
	return 0, nil
}

type stubLister struct{}

func (stubLister) ListLineItems(context.Context, string) ([]*stripe.LineItem, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	rec, err := reconcile.NewReconciler(stubStore{}, stubLister{}, nil)
	require.NoError(t, err)
	return &Handler{
		reconciler: rec,
		validate:   validator.New(),
	}
}

func performJSON(h gin.HandlerFunc, method, path, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	h(c)
	return w
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	h := newTestHandler(t)

	w := performJSON(h.Checkout, http.MethodPost, "/api/v1/checkout", `{"items": []}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "no items in checkout")
}

func TestCheckoutRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(t)

	w := performJSON(h.Checkout, http.MethodPost, "/api/v1/checkout", `{"items": "nope"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookAcksUnrecognizedEventWithoutSecret(t *testing.T) {
	h := newTestHandler(t)

	// No webhook secret configured, so the body is trusted as-is.
	body := `{"id": "evt_1", "type": "charge.succeeded", "data": {"object": {}}}`
	w := performJSON(h.Webhook, http.MethodPost, "/api/v1/webhook", body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received": true}`, w.Body.String())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newTestHandler(t)
	h.webhookSecret = "whsec_test"

	body := `{"id": "evt_1", "type": "checkout.session.completed", "data": {"object": {}}}`
	w := performJSON(h.Webhook, http.MethodPost, "/api/v1/webhook", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "signature verification failed")
}

func TestWebhookRejectsGarbageBody(t *testing.T) {
	h := newTestHandler(t)

	w := performJSON(h.Webhook, http.MethodPost, "/api/v1/webhook", `not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
