package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront-service/internal/auth"
	"storefront-service/internal/orders"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

func (h *Handler) ListMyOrders(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	list, err := h.o.ListOrdersByUser(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("failed to list orders", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

// GetOrder returns one order, filtered by row ownership; admins see all.
func (h *Handler) GetOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	order, err := h.o.GetOrderByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		slog.Error("failed to fetch order", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}

	// Do not reveal other users' order ids exist.
	if order.UserID != claims.Subject && !claims.HasRole(auth.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// RequestRefund flags an order for admin review. Allowed exactly once, from a
// post-payment state; anything else conflicts.
func (h *Handler) RequestRefund(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	orderID := c.Param("id")
	err := h.o.RequestRefund(c.Request.Context(), orderID, claims.Subject)
	if err != nil {
		if errors.Is(err, orders.ErrStatusConflict) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Refund cannot be requested for this order in its current state"})
			return
		}
		slog.Error("failed to request refund", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to request refund"})
		return
	}

	slog.Info("refund requested", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, orderID))
	c.JSON(http.StatusOK, gin.H{"message": "Refund requested"})
}

func (h *Handler) AdminListOrders(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	status := orders.Status(c.Query("status"))
	if status != "" && !status.IsValid() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid offset parameter"})
		return
	}

	list, err := h.o.ListOrders(c.Request.Context(), status, limit, offset)
	if err != nil {
		slog.Error("failed to list orders", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

type statusUpdateRequest struct {
	Status         string `json:"status" validate:"required"`
	TrackingNumber string `json:"tracking_number"`
}

// AdminUpdateStatus applies one state-machine transition. The update is
// conditional on the status the order held when it was read here, so a racing
// writer causes a conflict instead of a lost update.
func (h *Handler) AdminUpdateStatus(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	orderID := c.Param("id")

	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	order, err := h.o.GetOrderByID(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		slog.Error("failed to fetch order", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch order"})
		return
	}

	newStatus := orders.Status(req.Status)
	tracking := strings.TrimSpace(req.TrackingNumber)
	if tracking == "" {
		tracking = order.TrackingNumber
	}

	err = h.o.UpdateStatus(c.Request.Context(), orderID, order.Status, newStatus, tracking)
	if err != nil {
		var invalid orders.ErrInvalidTransition
		switch {
		case errors.As(err, &invalid):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, orders.ErrStatusConflict):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Order status changed concurrently, re-read and retry"})
		default:
			// Covers the shipped-without-tracking rejection and db failures.
			if newStatus == orders.StatusShipped && tracking == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("failed to update order status", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order status"})
		}
		return
	}

	slog.Info("order status updated", slog.String(logkey.TraceID, traceId),
		slog.String(logkey.OrderID, orderID), slog.String("Status", req.Status))
	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "status": req.Status})
}

// AdminDenyRefund reverts a pending refund request to the status the order
// held before the request.
func (h *Handler) AdminDenyRefund(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	orderID := c.Param("id")

	err := h.o.DenyRefund(c.Request.Context(), orderID)
	if err != nil {
		if errors.Is(err, orders.ErrStatusConflict) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Order has no pending refund request"})
			return
		}
		slog.Error("failed to deny refund", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.OrderID, orderID), slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to deny refund"})
		return
	}

	slog.Info("refund denied", slog.String(logkey.TraceID, traceId), slog.String(logkey.OrderID, orderID))
	c.JSON(http.StatusOK, gin.H{"message": "Refund request denied"})
}
