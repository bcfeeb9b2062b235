package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pharmapos/backend/internal/domain"
)

// NewRedisClient builds the client shared by the cache and the stock locks.
func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisExpiryCountsCache struct {
	client *redis.Client
}

func NewRedisExpiryCountsCache(client *redis.Client) *RedisExpiryCountsCache {
	return &RedisExpiryCountsCache{client: client}
}

func (c *RedisExpiryCountsCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisExpiryCountsCache) Get(ctx context.Context, key string) (*domain.ExpiryAlertCounts, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var counts domain.ExpiryAlertCounts
	if err := json.Unmarshal([]byte(val), &counts); err != nil {
		return nil, false, err
	}
	return &counts, true, nil
}

func (c *RedisExpiryCountsCache) Set(ctx context.Context, key string, value *domain.ExpiryAlertCounts, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
