package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/util"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

// ErrStockNotTracked is returned when a product has no stock key in
// Redis; callers fall back to the database check.
var ErrStockNotTracked = fmt.Errorf("stock not tracked in cache")

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
	cartTTL       time.Duration
	logger        *zap.Logger
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, cartTTL time.Duration) (*Client, error) {
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
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
		cartTTL:       cartTTL,
		logger:        util.GetLogger(),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("stock:%d", productID)
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

// ReserveStock atomically decrements the cached stock count.
// Returns false when the remaining stock does not cover the quantity,
// ErrStockNotTracked when the product has no stock key.
func (c *Client) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	outcome, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	switch outcome {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, ErrStockNotTracked
	}
}

// ReleaseStock re-credits a reservation after a failed write.
func (c *Client) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Result()
	if err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// InitStock seeds the stock counter for a product.
func (c *Client) InitStock(ctx context.Context, productID int64, available int) error {
	return c.rdb.Set(ctx, stockKey(productID), available, 0).Err()
}

// GetCachedCart retrieves a cached cart payload. A miss or a decode
// failure both read as "not cached".
func (c *Client) GetCachedCart(ctx context.Context, userID int64) ([]models.CartOrder, bool) {
	raw, err := c.rdb.Get(ctx, cartKey(userID)).Bytes()
	if err != nil {
		return nil, false
	}

	var carts []models.CartOrder
	if err := json.Unmarshal(raw, &carts); err != nil {
		c.logger.Warn("Dropping undecodable cart cache entry",
			zap.Int64("user_id", userID),
			zap.Error(err))
		c.rdb.Del(ctx, cartKey(userID))
		return nil, false
	}
	return carts, true
}

// SetCachedCart stores a cart payload with the configured TTL.
func (c *Client) SetCachedCart(ctx context.Context, userID int64, carts []models.CartOrder) {
	raw, err := json.Marshal(carts)
	if err != nil {
		c.logger.Error("Failed to marshal cart for caching",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, cartKey(userID), raw, c.cartTTL).Err(); err != nil {
		c.logger.Warn("Failed to cache cart",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}

// InvalidateCart drops a user's cached cart after a mutation.
func (c *Client) InvalidateCart(ctx context.Context, userID int64) {
	if err := c.rdb.Del(ctx, cartKey(userID)).Err(); err != nil {
		c.logger.Warn("Failed to invalidate cart cache",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
}
