package store

import (
	"context"
	"database/sql"
	"fmt"

	"spice-commerce/internal/models"
)

// orderColumns aliases the flattened address snapshot columns back into the
// nested struct paths sqlx expects.
const orderColumns = `
	id, user_id, merchant_order_id, total_amount, payment_status, order_status,
	provider_txn_id, provider_code, provider_message, provider_redirect_url,
	address_name AS "delivery_address.address_name",
	recipient_name AS "delivery_address.name",
	phone AS "delivery_address.phone",
	address_line1 AS "delivery_address.address_line1",
	address_line2 AS "delivery_address.address_line2",
	city AS "delivery_address.city",
	state AS "delivery_address.state",
	pincode AS "delivery_address.pincode",
	created_at, updated_at`

// CreateOrder persists a new order together with its line-item snapshots in
// one transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (
			user_id, merchant_order_id, total_amount, payment_status, order_status,
			address_name, recipient_name, phone, address_line1, address_line2,
			city, state, pincode
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	addr := order.DeliveryAddress
	row := tx.QueryRowxContext(ctx, query,
		order.UserID, order.MerchantOrderID, order.TotalAmount,
		order.PaymentStatus, order.OrderStatus,
		addr.AddressName, addr.Name, addr.Phone, addr.AddressLine1,
		addr.AddressLine2, addr.City, addr.State, addr.Pincode)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.QueryRowxContext(ctx,
			`INSERT INTO order_items (order_id, product_name, unit_price, quantity)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			item.OrderID, item.ProductName, item.UnitPrice, item.Quantity,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit()
}

// GetOrderByMerchantOrderID retrieves an order by its provider correlation id.
func (s *Store) GetOrderByMerchantOrderID(ctx context.Context, merchantOrderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE merchant_order_id = $1", merchantOrderID)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByMerchantOrderIDForUser is the owner-scoped variant. An order that
// exists but belongs to someone else is reported as not found.
func (s *Store) GetOrderByMerchantOrderIDForUser(ctx context.Context, merchantOrderID, userID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE merchant_order_id = $1 AND user_id = $2",
		merchantOrderID, userID)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUser retrieves an order by ID, scoped to its owner.
func (s *Store) GetOrderForUser(ctx context.Context, orderID int64, userID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 AND user_id = $2", orderID, userID)
	if err == sql.ErrNoRows {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUser retrieves a user's order history, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if err := s.loadItems(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) loadItems(ctx context.Context, order *models.Order) error {
	return s.db.SelectContext(ctx, &order.Items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", order.ID)
}

// SetGatewayDetails records the provider transaction id and hosted-checkout
// redirect URL obtained during payment initiation.
func (s *Store) SetGatewayDetails(ctx context.Context, orderID int64, providerTxnID, redirectURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET provider_txn_id = $1, provider_redirect_url = $2, updated_at = NOW()
		 WHERE id = $3`,
		providerTxnID, redirectURL, orderID)
	return err
}

// TransitionPaymentStatus atomically moves an order out of pending. The WHERE
// clause only matches orders still pending, so under concurrent reconcile
// attempts exactly one caller observes affected=true; everyone else sees the
// transition already taken. This is the sole at-most-once mechanism guarding
// the completion side effects.
func (s *Store) TransitionPaymentStatus(ctx context.Context, merchantOrderID, paymentStatus, orderStatus, providerCode, providerMessage, providerTxnID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET
			payment_status = $1,
			order_status = $2,
			provider_code = $3,
			provider_message = $4,
			provider_txn_id = COALESCE(NULLIF($5, ''), provider_txn_id),
			updated_at = NOW()
		 WHERE merchant_order_id = $6 AND payment_status = $7`,
		paymentStatus, orderStatus, providerCode, providerMessage, providerTxnID,
		merchantOrderID, models.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
