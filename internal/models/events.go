package models

import "time"

// Event types published to the platform topic.
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypePaymentCompleted = "PAYMENT_COMPLETED"
	EventTypePaymentFailed    = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published when a checkout creates a pending order.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID         int64           `json:"order_id"`
	MerchantOrderID string          `json:"merchant_order_id"`
	UserID          string          `json:"user_id"`
	TotalAmount     int64           `json:"total_amount"`
	Items           []OrderItemData `json:"items"`
}

// PaymentCompletedEvent is published when an order reconciles to completed.
type PaymentCompletedEvent struct {
	BaseEvent
	OrderID         int64  `json:"order_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	UserID          string `json:"user_id"`
	Amount          int64  `json:"amount"`
	ProviderTxnID   string `json:"provider_txn_id"`
}

// PaymentFailedEvent is published when an order reconciles to failed.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID         int64  `json:"order_id"`
	MerchantOrderID string `json:"merchant_order_id"`
	UserID          string `json:"user_id"`
	ProviderCode    string `json:"provider_code"`
	ProviderMessage string `json:"provider_message"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}
