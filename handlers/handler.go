package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"storefront-service/internal/addresses"
	"storefront-service/internal/auth"
	"storefront-service/internal/checkout"
	"storefront-service/internal/orders"
	"storefront-service/internal/reconcile"
	"storefront-service/internal/refunds"
	"storefront-service/middleware"
)

type Handler struct {
	o             *orders.Conf
	a             *addresses.Conf
	catalog       checkout.CatalogResolver
	reconciler    *reconcile.Reconciler
	refunds       *refunds.Service
	validate      *validator.Validate
	webhookSecret string
}

func NewHandler(o *orders.Conf, a *addresses.Conf, catalog checkout.CatalogResolver,
	reconciler *reconcile.Reconciler, refundSvc *refunds.Service, webhookSecret string) *Handler {
	return &Handler{
		o:             o,
		a:             a,
		catalog:       catalog,
		reconciler:    reconciler,
		refunds:       refundSvc,
		validate:      validator.New(),
		webhookSecret: webhookSecret,
	}
}

func API(endpointPrefix string, k *auth.Keys, o *orders.Conf, a *addresses.Conf,
	catalog checkout.CatalogResolver, reconciler *reconcile.Reconciler,
	refundSvc *refunds.Service, webhookSecret string) *gin.Engine {

	r := gin.New()
	mode := os.Getenv("GIN_MODE")
	if mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	m, err := middleware.NewMid(k)
	if err != nil {
		panic(err)
	}

	h := NewHandler(o, a, catalog, reconciler, refundSvc, webhookSecret)
	r.Use(middleware.Logger(), gin.Recovery())

	r.GET("/ping", HealthCheck)

	v1 := r.Group(endpointPrefix)
	{
		// Guest checkout is allowed; the webhook authenticates via signature.
		v1.POST("/checkout", h.Checkout)
		v1.POST("/webhook", h.Webhook)

		v1.Use(m.Authentication())
		v1.GET("/orders", h.ListMyOrders)
		v1.GET("/orders/:id", h.GetOrder)
		v1.POST("/orders/:id/refund-request", h.RequestRefund)

		v1.GET("/addresses", h.ListAddresses)
		v1.POST("/addresses", h.CreateAddress)
		v1.PUT("/addresses/:id", h.UpdateAddress)
		v1.DELETE("/addresses/:id", h.DeleteAddress)

		v1.GET("/admin/orders", m.Authorize(h.AdminListOrders, auth.RoleAdmin))
		v1.PATCH("/admin/orders/:id/status", m.Authorize(h.AdminUpdateStatus, auth.RoleAdmin))
		v1.POST("/admin/orders/:id/refund-deny", m.Authorize(h.AdminDenyRefund, auth.RoleAdmin))
		v1.POST("/admin/refund", m.Authorize(h.AdminRefund, auth.RoleAdmin))
	}

	return r
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}
