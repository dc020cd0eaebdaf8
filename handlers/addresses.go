package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-service/internal/addresses"
	"storefront-service/internal/auth"
	"storefront-service/pkg/ctxmanage"
	"storefront-service/pkg/logkey"
)

func (h *Handler) ListAddresses(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	list, err := h.a.ListAddresses(c.Request.Context(), claims.Subject)
	if err != nil {
		slog.Error("failed to list addresses", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch addresses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": list})
}

func (h *Handler) CreateAddress(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	var addr addresses.Address
	if err := c.ShouldBindJSON(&addr); err != nil {
		slog.Error("json validation error", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(addr); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "please provide values in correct format"})
		return
	}

	// Ownership comes from the token, never the payload.
	addr.UserID = claims.Subject

	created, err := h.a.CreateAddress(c.Request.Context(), addr)
	if err != nil {
		slog.Error("failed to create address", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to create address"})
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateAddress(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	var addr addresses.Address
	if err := c.ShouldBindJSON(&addr); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": http.StatusText(http.StatusBadRequest)})
		return
	}
	if err := h.validate.Struct(addr); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "please provide values in correct format"})
		return
	}

	addr.ID = c.Param("id")
	addr.UserID = claims.Subject

	if err := h.a.UpdateAddress(c.Request.Context(), addr); err != nil {
		if errors.Is(err, addresses.ErrAddressNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Address not found"})
			return
		}
		slog.Error("failed to update address", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to update address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Address updated"})
}

func (h *Handler) DeleteAddress(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, ok := c.Request.Context().Value(auth.ClaimsKey).(auth.Claims)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": http.StatusText(http.StatusUnauthorized)})
		return
	}

	if err := h.a.DeleteAddress(c.Request.Context(), c.Param("id"), claims.Subject); err != nil {
		if errors.Is(err, addresses.ErrAddressNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Address not found"})
			return
		}
		slog.Error("failed to delete address", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.ERROR, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Address deleted"})
}
