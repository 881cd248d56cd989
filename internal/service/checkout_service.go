package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spice-commerce/internal/gateway"
	"spice-commerce/internal/models"
	"spice-commerce/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciliation sources. The provider may report the same outcome over any
// of these channels; reconciliation behaves identically regardless.
const (
	SourceCallback = "callback"
	SourceRedirect = "redirect"
	SourcePoll     = "poll"
	SourceMock     = "mock"
)

// OrderStore is the persistence surface the checkout service needs.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Order, error)
	GetOrderByMerchantOrderIDForUser(ctx context.Context, merchantOrderID, userID string) (*models.Order, error)
	GetOrderForUser(ctx context.Context, orderID int64, userID string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	SetGatewayDetails(ctx context.Context, orderID int64, providerTxnID, redirectURL string) error
	TransitionPaymentStatus(ctx context.Context, merchantOrderID, paymentStatus, orderStatus, providerCode, providerMessage, providerTxnID string) (bool, error)
}

// AddressStore resolves delivery addresses at checkout time.
type AddressStore interface {
	GetAddressForUser(ctx context.Context, addressID int64, userID string) (*models.Address, error)
}

// CartStore is the cart surface the checkout service needs: a read at order
// creation and a wholesale delete on payment success.
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// EventPublisher publishes order lifecycle events to the platform topic.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishPaymentCompleted(ctx context.Context, event *models.PaymentCompletedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// CheckoutService ties cart, address, order record, and the asynchronous
// payment redirect/callback into one consistent outcome.
type CheckoutService struct {
	orders    OrderStore
	addresses AddressStore
	carts     CartStore
	gateway   gateway.Gateway
	events    EventPublisher
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	orders OrderStore,
	addresses AddressStore,
	carts CartStore,
	gw gateway.Gateway,
	events EventPublisher,
) *CheckoutService {
	return &CheckoutService{
		orders:    orders,
		addresses: addresses,
		carts:     carts,
		gateway:   gw,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// CheckoutResult is returned to the client so the browser can be sent to the
// hosted checkout page.
type CheckoutResult struct {
	OrderID         int64  `json:"order_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	RedirectURL     string `json:"redirect_url"`
}

// CreateOrder snapshots the user's cart and delivery address into a pending
// order and initiates payment with the gateway. The cart is not touched here;
// it is only cleared once payment is confirmed, so an abandoned payment
// leaves the cart intact for retry.
func (s *CheckoutService) CreateOrder(ctx context.Context, userID string, addressID int64) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateOrder")
	defer span.End()

	util.CheckoutsTotal.Inc()

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cart.Items) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, models.ErrEmptyCart
	}

	addr, err := s.addresses.GetAddressForUser(ctx, addressID, userID)
	if err != nil {
		if errors.Is(err, models.ErrInvalidAddress) {
			util.CheckoutsFailedTotal.WithLabelValues("invalid_address").Inc()
		}
		return nil, err
	}

	// The correlation id is assigned exactly once, before any external call.
	merchantOrderID := uuid.New().String()

	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, ci := range cart.Items {
		items = append(items, models.OrderItem{
			ProductName: ci.ProductName,
			UnitPrice:   ci.UnitPrice,
			Quantity:    ci.Quantity,
		})
	}

	order := &models.Order{
		UserID:          userID,
		MerchantOrderID: merchantOrderID,
		TotalAmount:     cart.Total(),
		PaymentStatus:   models.PaymentStatusPending,
		OrderStatus:     models.OrderStatusPending,
		DeliveryAddress: models.AddressSnapshot{
			AddressName:  addr.AddressName,
			Name:         addr.Name,
			Phone:        addr.Phone,
			AddressLine1: addr.AddressLine1,
			AddressLine2: addr.AddressLine2,
			City:         addr.City,
			State:        addr.State,
			Pincode:      addr.Pincode,
		},
		Items: items,
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("merchant_order_id", merchantOrderID),
		zap.Int64("total_amount", order.TotalAmount))

	s.publishOrderCreated(ctx, order)

	init, err := s.gateway.Initiate(ctx, order.TotalAmount, merchantOrderID)
	if err != nil {
		// The pending order is kept: a late provider callback for this
		// merchant order id must still be reconcilable.
		util.CheckoutsFailedTotal.WithLabelValues("gateway").Inc()
		s.logger.Error("Payment initiation failed",
			zap.String("merchant_order_id", merchantOrderID),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPaymentInitiation, err)
	}

	if err := s.orders.SetGatewayDetails(ctx, order.ID, init.ProviderTxnID, init.RedirectURL); err != nil {
		return nil, fmt.Errorf("failed to record gateway details: %w", err)
	}

	return &CheckoutResult{
		OrderID:         order.ID,
		MerchantOrderID: merchantOrderID,
		RedirectURL:     init.RedirectURL,
	}, nil
}

// Reconcile applies a provider-reported outcome to the order identified by
// merchantOrderID. It is the single state-transition rule behind the
// callback, redirect, and poll entry points. Terminal orders are returned
// unchanged, which makes duplicate provider notifications harmless: only the
// caller that wins the pending transition runs the completion side effects.
func (s *CheckoutService) Reconcile(ctx context.Context, source, merchantOrderID string, result *gateway.StatusResult) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Reconcile")
	defer span.End()

	order, err := s.orders.GetOrderByMerchantOrderID(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}

	if order.PaymentTerminal() {
		util.ReconciliationsTotal.WithLabelValues(source, "duplicate").Inc()
		return order, nil
	}

	if result.State == gateway.StatePending {
		util.ReconciliationsTotal.WithLabelValues(source, "pending").Inc()
		return order, nil
	}

	paymentStatus := models.PaymentStatusFailed
	orderStatus := order.OrderStatus
	if result.State == gateway.StateSuccess {
		paymentStatus = models.PaymentStatusCompleted
		// Fulfillment is not integrated; a paid order carries the explicit
		// sentinel instead of a guessed fulfillment state.
		orderStatus = models.OrderStatusNotApplicable
	}

	won, err := s.orders.TransitionPaymentStatus(ctx, merchantOrderID,
		paymentStatus, orderStatus, result.Code, result.Message, result.ProviderTxnID)
	if err != nil {
		return nil, err
	}

	if !won {
		// A concurrent reconcile got there first. Return whatever state it
		// left behind; no side effects from this call.
		util.ReconciliationsTotal.WithLabelValues(source, "lost_race").Inc()
		return s.orders.GetOrderByMerchantOrderID(ctx, merchantOrderID)
	}

	order.PaymentStatus = paymentStatus
	order.OrderStatus = orderStatus
	order.ProviderCode = result.Code
	order.ProviderMessage = result.Message
	if result.ProviderTxnID != "" {
		order.ProviderTxnID = result.ProviderTxnID
	}

	if paymentStatus == models.PaymentStatusCompleted {
		util.ReconciliationsTotal.WithLabelValues(source, "completed").Inc()
		s.clearCart(ctx, order)
		s.publishPaymentCompleted(ctx, order)
	} else {
		// Failed payment leaves the cart untouched so the user can retry
		// checkout with the same contents.
		util.ReconciliationsTotal.WithLabelValues(source, "failed").Inc()
		s.publishPaymentFailed(ctx, order)
	}

	s.logger.Info("Order reconciled",
		zap.String("source", source),
		zap.String("merchant_order_id", merchantOrderID),
		zap.String("payment_status", paymentStatus),
		zap.String("provider_code", result.Code))

	return order, nil
}

// HandleCallback verifies and applies an inbound server-to-server provider
// callback.
func (s *CheckoutService) HandleCallback(ctx context.Context, xVerify string, body []byte) (*models.Order, error) {
	merchantOrderID, result, err := s.gateway.ValidateCallback(xVerify, body)
	if err != nil {
		return nil, err
	}
	return s.Reconcile(ctx, SourceCallback, merchantOrderID, result)
}

// CheckStatus returns the current order snapshot for its owner. While the
// payment is still pending it also queries the gateway for the authoritative
// state and runs the shared reconcile step, so polling itself can settle the
// order.
func (s *CheckoutService) CheckStatus(ctx context.Context, userID, merchantOrderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CheckStatus")
	defer span.End()

	order, err := s.orders.GetOrderByMerchantOrderIDForUser(ctx, merchantOrderID, userID)
	if err != nil {
		return nil, err
	}

	if order.PaymentTerminal() {
		return order, nil
	}

	result, err := s.gateway.QueryStatus(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}

	return s.Reconcile(ctx, SourcePoll, merchantOrderID, result)
}

// GetOrder retrieves a persisted order for its owner. No live gateway query.
func (s *CheckoutService) GetOrder(ctx context.Context, userID string, orderID int64) (*models.Order, error) {
	return s.orders.GetOrderForUser(ctx, orderID, userID)
}

// ListOrders retrieves the owner's order history.
func (s *CheckoutService) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

func (s *CheckoutService) clearCart(ctx context.Context, order *models.Order) {
	if err := s.carts.DeleteCart(ctx, order.UserID); err != nil {
		// The order is already completed; the clear will be retried by ops
		// tooling, not by flipping the order back.
		s.logger.Error("Failed to clear cart after payment",
			zap.String("user_id", order.UserID),
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		return
	}
	util.CartsClearedTotal.Inc()
}

func (s *CheckoutService) publishOrderCreated(ctx context.Context, order *models.Order) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeOrderCreated),
		OrderID:         order.ID,
		MerchantOrderID: order.MerchantOrderID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		Items:           items,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *CheckoutService) publishPaymentCompleted(ctx context.Context, order *models.Order) {
	event := &models.PaymentCompletedEvent{
		BaseEvent:       newBaseEvent(models.EventTypePaymentCompleted),
		OrderID:         order.ID,
		MerchantOrderID: order.MerchantOrderID,
		UserID:          order.UserID,
		Amount:          order.TotalAmount,
		ProviderTxnID:   order.ProviderTxnID,
	}
	if err := s.events.PublishPaymentCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentCompleted event", zap.Error(err))
	}
}

func (s *CheckoutService) publishPaymentFailed(ctx context.Context, order *models.Order) {
	event := &models.PaymentFailedEvent{
		BaseEvent:       newBaseEvent(models.EventTypePaymentFailed),
		OrderID:         order.ID,
		MerchantOrderID: order.MerchantOrderID,
		UserID:          order.UserID,
		ProviderCode:    order.ProviderCode,
		ProviderMessage: order.ProviderMessage,
	}
	if err := s.events.PublishPaymentFailed(ctx, event); err != nil {
		s.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
