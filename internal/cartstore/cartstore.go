package cartstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"spice-commerce/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/add_item.lua
var addItemScript string

//go:embed scripts/set_quantity.lua
var setQuantityScript string

// Client holds per-user carts in Redis. Each cart is one hash keyed by
// product id, so clearing a cart is a single DEL.
type Client struct {
	rdb       *redis.Client
	addScript *redis.Script
	setScript *redis.Script
}

// NewClient creates a new cart store client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:       rdb,
		addScript: redis.NewScript(addItemScript),
		setScript: redis.NewScript(setQuantityScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

// AddItem adds a line to the user's cart, or increments the quantity when the
// product is already present. Returns the resulting line quantity.
func (c *Client) AddItem(ctx context.Context, userID string, item models.CartItem) (int, error) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal cart item: %w", err)
	}

	field := strconv.FormatInt(item.ProductID, 10)
	result, err := c.addScript.Run(ctx, c.rdb,
		[]string{cartKey(userID)}, field, string(payload), item.Quantity).Result()
	if err != nil {
		return 0, fmt.Errorf("add item script failed: %w", err)
	}

	qty, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return int(qty), nil
}

// SetQuantity overwrites a line's quantity. Zero or negative removes the line
// entirely; a stored zero-quantity line never exists.
func (c *Client) SetQuantity(ctx context.Context, userID string, productID int64, quantity int) (int, error) {
	field := strconv.FormatInt(productID, 10)
	result, err := c.setScript.Run(ctx, c.rdb,
		[]string{cartKey(userID)}, field, quantity).Result()
	if err != nil {
		return 0, fmt.Errorf("set quantity script failed: %w", err)
	}

	qty, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	if qty < 0 {
		return 0, models.ErrProductNotFound
	}
	return int(qty), nil
}

// RemoveItem removes a line from the user's cart.
func (c *Client) RemoveItem(ctx context.Context, userID string, productID int64) error {
	field := strconv.FormatInt(productID, 10)
	return c.rdb.HDel(ctx, cartKey(userID), field).Err()
}

// GetCart loads the user's cart. The total is recomputed from the items on
// every read, never cached.
func (c *Client) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	fields, err := c.rdb.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart := &models.Cart{UserID: userID, Items: make([]models.CartItem, 0, len(fields))}
	for _, raw := range fields {
		var item models.CartItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}

	sort.Slice(cart.Items, func(i, j int) bool {
		return cart.Items[i].ProductID < cart.Items[j].ProductID
	})
	cart.TotalAmount = cart.Total()
	return cart, nil
}

// DeleteCart drops the user's cart wholesale. A single DEL, so the clear is
// all-or-nothing.
func (c *Client) DeleteCart(ctx context.Context, userID string) error {
	return c.rdb.Del(ctx, cartKey(userID)).Err()
}
