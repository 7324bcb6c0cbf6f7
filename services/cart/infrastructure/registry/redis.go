package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/ghuser/orderflow/pkg/cache"
	"github.com/ghuser/orderflow/services/cart/domain/repositories"
)

const redisKeyPrefix = "cart:order"

// RedisRegistry shares reservations across cart instances with SET NX.
// Key format: "cart:order:{orderID}"
type RedisRegistry struct {
	client *cache.RedisClient
	ttl    time.Duration
}

var _ repositories.OrderRegistry = (*RedisRegistry)(nil)

// NewRedisRegistry returns a registry backed by r. A zero ttl keeps
// reservations forever.
func NewRedisRegistry(r *cache.RedisClient, ttl time.Duration) *RedisRegistry {
	return &RedisRegistry{client: r, ttl: ttl}
}

func (r *RedisRegistry) Reserve(ctx context.Context, orderID string) (bool, error) {
	ok, err := r.client.Client().SetNX(ctx, r.key(orderID), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("registry reserve: %w", err)
	}
	return ok, nil
}

func (r *RedisRegistry) Release(ctx context.Context, orderID string) error {
	if err := r.client.Client().Del(ctx, r.key(orderID)).Err(); err != nil {
		return fmt.Errorf("registry release: %w", err)
	}
	return nil
}

func (r *RedisRegistry) key(orderID string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, orderID)
}
