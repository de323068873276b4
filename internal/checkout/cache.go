package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const customerKeyPrefix = "checkout:customer:"

// CustomerCache remembers the billing customer id for a normalized email.
type CustomerCache interface {
	Get(ctx context.Context, email string) (string, bool, error)
	Set(ctx context.Context, email, customerID string) error
	Delete(ctx context.Context, email string) error
}

// RedisCustomerCache stores customer ids in Redis with a TTL.
type RedisCustomerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCustomerCache instantiates the cache helper.
func NewRedisCustomerCache(client *redis.Client, ttl time.Duration) *RedisCustomerCache {
	return &RedisCustomerCache{client: client, ttl: ttl}
}

// Get implements CustomerCache.
func (c *RedisCustomerCache) Get(ctx context.Context, email string) (string, bool, error) {
	if c == nil || c.client == nil {
		return "", false, nil
	}
	id, err := c.client.Get(ctx, customerKeyPrefix+email).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

// Set implements CustomerCache.
func (c *RedisCustomerCache) Set(ctx context.Context, email, customerID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, customerKeyPrefix+email, customerID, c.ttl).Err()
}

// Delete implements CustomerCache.
func (c *RedisCustomerCache) Delete(ctx context.Context, email string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, customerKeyPrefix+email).Err()
}
