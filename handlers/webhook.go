package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

// Webhook receives asynchronous provider events. Signature failures are
// terminal (400, payload untrusted); processing failures answer non-2xx so
// the provider's retry redelivers.
func (h *Handler) Webhook(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	const MaxBodyBytes = int64(65536)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		slog.Error("failed to read webhook body", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	var event stripe.Event
	if h.webhookSecret != "" {
		event, err = webhook.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.webhookSecret)
		if err != nil {
			slog.Error("webhook signature verification failed",
				slog.String(logkey.TraceID, traceId), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Webhook signature verification failed"})
			return
		}
	} else {
		// Local development fallback only; a production deployment must set
		// STRIPE_WEBHOOK_SECRET or events are accepted unverified.
		slog.Warn("webhook signature verification skipped (no STRIPE_WEBHOOK_SECRET)",
			slog.String(logkey.TraceID, traceId))
		if err := json.Unmarshal(body, &event); err != nil {
			slog.Error("failed to unmarshal webhook event", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	slog.Info("received stripe webhook", slog.String(logkey.TraceID, traceId),
		slog.String("event_type", string(event.Type)))

	if err := h.reconciler.HandleEvent(c.Request.Context(), event, traceId); err != nil {
		slog.Error("error processing webhook", slog.String(logkey.TraceID, traceId),
			slog.String("event_type", string(event.Type)), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
