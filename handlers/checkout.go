package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"

	"storefront-service/internal/cart"
	"storefront-service/internal/checkout"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

type CheckoutRequest struct {
	Items  []cart.Item `json:"items"`
	UserID string      `json:"user_id"` // optional, guest checkout allowed
}

// Checkout turns the posted cart into a provider checkout session and returns
// the redirect URL. Synchronous and user-facing: failures are surfaced once,
// the retry is the user clicking again.
func (h *Handler) Checkout(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	if c.Request.ContentLength > 64*1024 {
		slog.Error("request body limit breached", slog.String(logkey.TraceID, traceId),
			slog.Int64("Size Received", c.Request.ContentLength))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Request body too large."})
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}

	userCart := cart.Cart{Items: req.Items}
	if err := userCart.Validate(); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hasDefaultShipping := false
	if req.UserID != "" {
		var err error
		hasDefaultShipping, err = h.a.HasDefaultShipping(c.Request.Context(), req.UserID)
		if err != nil {
			slog.Error("failed to look up default shipping address",
				slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
			return
		}
	}

	params, err := checkout.BuildSessionParams(c.Request.Context(), h.catalog, checkout.BuildInput{
		Cart:               userCart,
		UserID:             req.UserID,
		Origin:             requestOrigin(c),
		HasDefaultShipping: hasDefaultShipping,
	})
	if err != nil {
		if errors.Is(err, checkout.ErrEmptyCart) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No items in checkout"})
			return
		}
		slog.Error("failed to build checkout session", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": providerMessage(err)})
		return
	}

	params.Context = c.Request.Context()
	stripeSession, err := session.New(params)
	if err != nil {
		slog.Error("error creating Stripe checkout session", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": providerMessage(err)})
		return
	}

	slog.Info("checkout session created", slog.String(logkey.TraceID, traceId),
		slog.String("Session ID", stripeSession.ID), slog.String("Mode", *params.Mode))
	c.JSON(http.StatusOK, gin.H{"url": stripeSession.URL})
}

// requestOrigin prefers the browser-sent Origin header; deployments behind a
// fixed domain can pin it with STOREFRONT_ORIGIN.
func requestOrigin(c *gin.Context) string {
	if origin := os.Getenv("STOREFRONT_ORIGIN"); origin != "" {
		return origin
	}
	return c.Request.Header.Get("Origin")
}

// providerMessage passes the provider's own message through to the caller.
func providerMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}
