package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"spice-commerce/internal/gateway"
	"spice-commerce/internal/models"
	"spice-commerce/internal/service"
	"spice-commerce/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type checkoutRequest struct {
	AddressID int64 `json:"address_id" binding:"required"`
}

// createCheckout handles POST /api/v1/checkout
func (h *Handler) createCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.checkout.CreateOrder(c.Request.Context(), currentUser(c), req.AddressID)
	switch {
	case errors.Is(err, models.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart is empty"})
	case errors.Is(err, models.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery address"})
	case errors.Is(err, models.ErrPaymentInitiation):
		// The pending order is retained; the attempt may still settle via a
		// late callback, so the client should check status before retrying.
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "payment initiation failed, check order status before retrying",
			"retryable": true,
		})
	case err != nil:
		h.logger.Error("Checkout failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		c.JSON(http.StatusOK, result)
	}
}

// paymentCallback handles the provider's server-to-server notification.
// Business outcomes and correlation problems are both acknowledged with 200
// so the provider stops redelivering; correlation problems are logged
// distinctly and mutate nothing.
func (h *Handler) paymentCallback(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	order, err := h.checkout.HandleCallback(c.Request.Context(), c.GetHeader("X-VERIFY"), body)
	switch {
	case errors.Is(err, models.ErrInvalidCallback):
		util.CallbackRejectionsTotal.WithLabelValues("invalid_signature").Inc()
		h.logger.Warn("Rejected unverifiable payment callback", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"processed": false, "reason": "invalid callback"})
	case errors.Is(err, models.ErrOrderNotFound):
		// Either a forged callback or a provider-side bug; there is no order
		// to mark failed.
		util.CallbackRejectionsTotal.WithLabelValues("unknown_order").Inc()
		h.logger.Warn("Payment callback for unknown merchant order id")
		c.JSON(http.StatusOK, gin.H{"processed": false, "reason": "unknown order"})
	case err != nil:
		h.logger.Error("Payment callback processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"processed":      true,
			"payment_status": order.PaymentStatus,
		})
	}
}

// firstQuery returns the first non-empty value among aliases of a query
// parameter. The provider's redirect parameter naming varies call to call.
func firstQuery(c *gin.Context, names ...string) string {
	for _, name := range names {
		if v := c.Query(name); v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) failureRedirect(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound,
		fmt.Sprintf("%s/payment/failure?error=%s", h.opts.FrontendURL, url.QueryEscape(reason)))
}

// paymentRedirect handles the browser returning from the hosted checkout
// page. A redirect with no correlation id at all cannot be verified and goes
// straight to the failure page; it is never guessed.
func (h *Handler) paymentRedirect(c *gin.Context) {
	merchantOrderID := firstQuery(c, "merchantOrderId", "merchantTransactionId", "orderId")
	txnID := firstQuery(c, "transactionId", "phonepeTransactionId")
	code := firstQuery(c, "responseCode", "code", "status")
	message := firstQuery(c, "responseMessage", "message", "description")

	if merchantOrderID == "" {
		h.logger.Warn("Payment redirect without correlation id")
		h.failureRedirect(c, "missing_parameters")
		return
	}

	result := &gateway.StatusResult{
		State:         gateway.ClassifyResponseCode(code),
		Code:          code,
		Message:       message,
		ProviderTxnID: txnID,
	}

	order, err := h.checkout.Reconcile(c.Request.Context(), service.SourceRedirect, merchantOrderID, result)
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		h.logger.Warn("Payment redirect for unknown merchant order id",
			zap.String("merchant_order_id", merchantOrderID))
		h.failureRedirect(c, "order_not_found")
		return
	case err != nil:
		h.logger.Error("Payment redirect reconciliation failed", zap.Error(err))
		h.failureRedirect(c, "server_error")
		return
	}

	if order.PaymentStatus == models.PaymentStatusCompleted {
		c.Redirect(http.StatusFound, fmt.Sprintf(
			"%s/payment/success?merchantTransactionId=%s&transactionId=%s",
			h.opts.FrontendURL, url.QueryEscape(merchantOrderID), url.QueryEscape(order.ProviderTxnID)))
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf(
		"%s/payment/failure?merchantTransactionId=%s&responseCode=%s&responseMessage=%s",
		h.opts.FrontendURL, url.QueryEscape(merchantOrderID),
		url.QueryEscape(order.ProviderCode), url.QueryEscape(order.ProviderMessage)))
}

// mockPaymentSuccess completes a payment in development mode through the
// normal reconcile path.
func (h *Handler) mockPaymentSuccess(c *gin.Context) {
	merchantOrderID := c.Query("merchantTransactionId")
	if merchantOrderID == "" {
		h.failureRedirect(c, "missing_parameters")
		return
	}

	result := &gateway.StatusResult{
		State:         gateway.StateSuccess,
		Code:          "PAYMENT_SUCCESS",
		Message:       "mock payment successful",
		ProviderTxnID: fmt.Sprintf("MOCK_TXN_%d", time.Now().UnixMilli()),
	}

	order, err := h.checkout.Reconcile(c.Request.Context(), service.SourceMock, merchantOrderID, result)
	if err != nil {
		h.failureRedirect(c, "order_not_found")
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf(
		"%s/payment/success?merchantTransactionId=%s&transactionId=%s",
		h.opts.FrontendURL, url.QueryEscape(merchantOrderID), url.QueryEscape(order.ProviderTxnID)))
}

// paymentStatus handles GET /api/v1/payment/status/:merchantOrderId. While
// the order is pending this actively queries the gateway, so polling itself
// drives reconciliation.
func (h *Handler) paymentStatus(c *gin.Context) {
	merchantOrderID := c.Param("merchantOrderId")

	order, err := h.checkout.CheckStatus(c.Request.Context(), currentUser(c), merchantOrderID)
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, models.ErrGatewayUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable", "retryable": true})
	case err != nil:
		h.logger.Error("Payment status check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"order_id":          order.ID,
			"merchant_order_id": order.MerchantOrderID,
			"payment_status":    order.PaymentStatus,
			"order_status":      order.OrderStatus,
			"provider_code":     order.ProviderCode,
			"provider_message":  order.ProviderMessage,
			"provider_txn_id":   order.ProviderTxnID,
		})
	}
}

// getOrder handles GET /api/v1/orders/:id
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.checkout.GetOrder(c.Request.Context(), currentUser(c), orderID)
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case err != nil:
		h.logger.Error("Failed to get order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{"order": order})
	}
}

// listOrders handles GET /api/v1/orders
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.checkout.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
