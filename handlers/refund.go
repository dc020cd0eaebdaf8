package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"

	"storefront-service/internal/orders"
	"storefront-service/internal/refunds"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

type RefundRequest struct {
	OrderID string `json:"order_id" validate:"required"`
	Reason  string `json:"reason"` // duplicate | fraudulent | requested_by_customer
}

// AdminRefund issues the provider refund for an order and records it.
func (h *Handler) AdminRefund(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "order_id is required"})
		return
	}

	info, err := h.refunds.Refund(c.Request.Context(), req.OrderID, req.Reason, traceId)
	if err != nil {
		switch {
		case errors.Is(err, refunds.ErrAlreadyRefunded):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Order already refunded"})
		case errors.Is(err, orders.ErrOrderNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case isInvalidRequest(err):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": providerMessage(err)})
		default:
			slog.Error("failed to process refund", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, req.OrderID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to process refund"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "refund": info})
}

// isInvalidRequest reports whether the provider rejected the request itself
// (bad payment reference, charge already refunded upstream) as opposed to an
// internal or transient failure.
func isInvalidRequest(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest
}
