package models

import "time"

// Product represents a product in the spice catalog. Prices are stored in
// minor currency units (paise) to keep money arithmetic integral end to end.
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SKU       string    `db:"sku" json:"sku"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CartItem is a line in a user's cart. Name and unit price are snapshotted
// from the catalog at add time.
type CartItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

// Cart is a user's current cart. Total is always recomputed from the items,
// never stored separately.
type Cart struct {
	UserID      string     `json:"user_id"`
	Items       []CartItem `json:"items"`
	TotalAmount int64      `json:"total_amount"`
}

// Total sums unit price times quantity over the items.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return total
}

// Address is a saved delivery address. At most one address per user is
// flagged as default.
type Address struct {
	ID           int64     `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	AddressName  string    `db:"address_name" json:"address_name"`
	Name         string    `db:"name" json:"name"`
	Phone        string    `db:"phone" json:"phone"`
	AddressLine1 string    `db:"address_line1" json:"address_line1"`
	AddressLine2 string    `db:"address_line2" json:"address_line2"`
	City         string    `db:"city" json:"city"`
	State        string    `db:"state" json:"state"`
	Pincode      string    `db:"pincode" json:"pincode"`
	IsDefault    bool      `db:"is_default" json:"is_default"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AddressSnapshot is the delivery address copied into an order at checkout.
// It is a copy of the address fields, not a reference, so later edits or
// deletes of the saved address never change the order.
type AddressSnapshot struct {
	AddressName  string `db:"address_name" json:"address_name"`
	Name         string `db:"name" json:"name"`
	Phone        string `db:"phone" json:"phone"`
	AddressLine1 string `db:"address_line1" json:"address_line1"`
	AddressLine2 string `db:"address_line2" json:"address_line2"`
	City         string `db:"city" json:"city"`
	State        string `db:"state" json:"state"`
	Pincode      string `db:"pincode" json:"pincode"`
}

// OrderItem is an immutable line-item snapshot copied from the cart when the
// order is created.
type OrderItem struct {
	ID          int64  `db:"id" json:"-"`
	OrderID     int64  `db:"order_id" json:"-"`
	ProductName string `db:"product_name" json:"product_name"`
	UnitPrice   int64  `db:"unit_price" json:"unit_price"`
	Quantity    int    `db:"quantity" json:"quantity"`
}

// Order is the durable record of a checkout attempt.
type Order struct {
	ID              int64  `db:"id" json:"id"`
	UserID          string `db:"user_id" json:"user_id"`
	MerchantOrderID string `db:"merchant_order_id" json:"merchant_order_id"`
	TotalAmount     int64  `db:"total_amount" json:"total_amount"`
	PaymentStatus   string `db:"payment_status" json:"payment_status"`
	OrderStatus     string `db:"order_status" json:"order_status"`

	DeliveryAddress AddressSnapshot `db:"delivery_address" json:"delivery_address"`
	Items           []OrderItem     `db:"-" json:"items,omitempty"`

	// Provider-side fields. Diagnostic only; control flow never depends on
	// anything here except through the gateway's normalized state.
	ProviderTxnID       string `db:"provider_txn_id" json:"provider_txn_id,omitempty"`
	ProviderCode        string `db:"provider_code" json:"provider_code,omitempty"`
	ProviderMessage     string `db:"provider_message" json:"provider_message,omitempty"`
	ProviderRedirectURL string `db:"provider_redirect_url" json:"provider_redirect_url,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Payment statuses. Pending is the sole initial state; completed and failed
// are terminal and sticky.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Order statuses. NotApplicable is a sentinel: fulfillment is not integrated
// yet, so a paid order deliberately carries no real fulfillment state.
const (
	OrderStatusPending       = "pending"
	OrderStatusConfirmed     = "confirmed"
	OrderStatusShipped       = "shipped"
	OrderStatusDelivered     = "delivered"
	OrderStatusCancelled     = "cancelled"
	OrderStatusNotApplicable = "N/A"
)

// PaymentTerminal reports whether the order's payment status can no longer
// change.
func (o *Order) PaymentTerminal() bool {
	return o.PaymentStatus == PaymentStatusCompleted || o.PaymentStatus == PaymentStatusFailed
}
