package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// OrderCacheTTL is the time-to-live for cached orders.
	OrderCacheTTL = 24 * time.Hour

	orderCacheKeyPrefix = "order"
)

var (
	// ErrCacheMiss is returned by Get when the key does not exist or has expired.
	ErrCacheMiss error = redis.Nil
	// ErrCacheCorrupt is returned by Get when the stored hash cannot be decoded.
	ErrCacheCorrupt = errors.New("cache entry corrupt")
)

// CachedOrder is the read model stored in Redis. Payload holds the order
// as served by the orders API.
type CachedOrder struct {
	OrderID  string
	Status   string
	Payload  json.RawMessage
	CachedAt time.Time
}

// OrderCache stores materialized orders as Redis hashes.
// Key format: "order:{orderID}"
type OrderCache struct {
	client *RedisClient
	ttl    time.Duration
}

// NewOrderCache creates an OrderCache backed by r.
func NewOrderCache(r *RedisClient) *OrderCache {
	return &OrderCache{client: r, ttl: OrderCacheTTL}
}

// Get returns the cached order or ErrCacheMiss.
func (c *OrderCache) Get(ctx context.Context, orderID string) (*CachedOrder, error) {
	vals, err := c.client.Client().HGetAll(ctx, c.key(orderID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrCacheMiss
	}

	cachedAt, err := time.Parse(time.RFC3339Nano, vals["cached_at"])
	if err != nil {
		return nil, fmt.Errorf("%w: cached_at of order %s: %w", ErrCacheCorrupt, orderID, err)
	}
	payload := vals["payload"]
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("%w: invalid payload json for order %s", ErrCacheCorrupt, orderID)
	}

	return &CachedOrder{
		OrderID:  vals["order_id"],
		Status:   vals["status"],
		Payload:  json.RawMessage(payload),
		CachedAt: cachedAt,
	}, nil
}

// Set writes order as a Redis hash and refreshes its TTL in one pipeline.
func (c *OrderCache) Set(ctx context.Context, order *CachedOrder) error {
	key := c.key(order.OrderID)
	pipe := c.client.Client().TxPipeline()
	pipe.HSet(ctx, key,
		"order_id", order.OrderID,
		"status", order.Status,
		"payload", string(order.Payload),
		"cached_at", order.CachedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes a cached order.
func (c *OrderCache) Delete(ctx context.Context, orderID string) error {
	if err := c.client.Client().Del(ctx, c.key(orderID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *OrderCache) key(orderID string) string {
	return fmt.Sprintf("%s:%s", orderCacheKeyPrefix, orderID)
}
