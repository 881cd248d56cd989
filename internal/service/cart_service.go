package service

import (
	"context"
	"fmt"

	"spice-commerce/internal/models"
	"spice-commerce/internal/util"

	"go.uber.org/zap"
)

// Catalog resolves products for cart mutations.
type Catalog interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// CartRepository is the full cart surface used by the user-facing cart flows.
type CartRepository interface {
	CartStore
	AddItem(ctx context.Context, userID string, item models.CartItem) (int, error)
	SetQuantity(ctx context.Context, userID string, productID int64, quantity int) (int, error)
	RemoveItem(ctx context.Context, userID string, productID int64) error
}

// CartService handles the user-facing cart flows. The catalog name and price
// are snapshotted into the cart line at add time.
type CartService struct {
	catalog Catalog
	carts   CartRepository
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(catalog Catalog, carts CartRepository) *CartService {
	return &CartService{
		catalog: catalog,
		carts:   carts,
		logger:  util.GetLogger(),
	}
}

// AddToCart resolves the product and adds it to the user's cart, incrementing
// the line quantity when it is already present.
func (s *CartService) AddToCart(ctx context.Context, userID string, productID int64, quantity int) (*models.Cart, error) {
	product, err := s.catalog.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if quantity < 1 {
		quantity = 1
	}

	item := models.CartItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		Quantity:    quantity,
	}

	if _, err := s.carts.AddItem(ctx, userID, item); err != nil {
		return nil, fmt.Errorf("failed to add cart item: %w", err)
	}

	return s.carts.GetCart(ctx, userID)
}

// UpdateQuantity sets a cart line's quantity; zero or below removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) (*models.Cart, error) {
	if _, err := s.carts.SetQuantity(ctx, userID, productID, quantity); err != nil {
		return nil, err
	}
	return s.carts.GetCart(ctx, userID)
}

// RemoveFromCart removes a line from the user's cart.
func (s *CartService) RemoveFromCart(ctx context.Context, userID string, productID int64) (*models.Cart, error) {
	if err := s.carts.RemoveItem(ctx, userID, productID); err != nil {
		return nil, fmt.Errorf("failed to remove cart item: %w", err)
	}
	return s.carts.GetCart(ctx, userID)
}

// GetCart loads the user's cart with its recomputed total.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	return s.carts.GetCart(ctx, userID)
}

// ClearCart drops the user's cart entirely.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	return s.carts.DeleteCart(ctx, userID)
}
