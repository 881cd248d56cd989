package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"spice-commerce/internal/gateway"
	"spice-commerce/internal/models"
	"spice-commerce/internal/service"
	"spice-commerce/internal/store"
	"spice-commerce/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CheckoutAPI is the checkout service surface the HTTP layer consumes.
type CheckoutAPI interface {
	CreateOrder(ctx context.Context, userID string, addressID int64) (*service.CheckoutResult, error)
	HandleCallback(ctx context.Context, xVerify string, body []byte) (*models.Order, error)
	Reconcile(ctx context.Context, source, merchantOrderID string, result *gateway.StatusResult) (*models.Order, error)
	CheckStatus(ctx context.Context, userID, merchantOrderID string) (*models.Order, error)
	GetOrder(ctx context.Context, userID string, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
}

// Options configures handler behavior that depends on deployment.
type Options struct {
	// FrontendURL is where browsers land after payment
	// ({FrontendURL}/payment/success and /payment/failure).
	FrontendURL string
	// DevMode registers the mock-success route used with the mock gateway.
	DevMode bool
}

// Handler contains HTTP handlers
type Handler struct {
	checkout CheckoutAPI
	carts    *service.CartService
	store    *store.Store
	opts     Options
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(checkout CheckoutAPI, carts *service.CartService, st *store.Store, opts Options) *Handler {
	return &Handler{
		checkout: checkout,
		carts:    carts,
		store:    st,
		opts:     opts,
		logger:   util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Provider-facing and browser-facing payment routes carry their own
	// authentication (callback checksum) or none (redirect), never a user
	// session.
	v1.POST("/payment/callback", h.paymentCallback)
	v1.GET("/payment/redirect", h.paymentRedirect)
	if h.opts.DevMode {
		v1.GET("/payment/mock-success", h.mockPaymentSuccess)
	}

	v1.GET("/products", h.listProducts)
	v1.GET("/products/:id", h.getProduct)

	authed := v1.Group("")
	authed.Use(requireUser())
	{
		authed.POST("/checkout", h.createCheckout)
		authed.GET("/payment/status/:merchantOrderId", h.paymentStatus)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)

		authed.GET("/cart", h.getCart)
		authed.POST("/cart/items", h.addCartItem)
		authed.PATCH("/cart/items/:productId", h.updateCartItem)
		authed.DELETE("/cart/items/:productId", h.removeCartItem)
		authed.DELETE("/cart", h.clearCart)

		authed.GET("/addresses", h.listAddresses)
		authed.POST("/addresses", h.createAddress)
		authed.PATCH("/addresses/:id/default", h.setDefaultAddress)
		authed.DELETE("/addresses/:id", h.deleteAddress)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// requireUser enforces the request-scoped identity set by the upstream auth
// proxy. Core operations take the user id explicitly; nothing reads ambient
// auth state.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString("userID")
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
