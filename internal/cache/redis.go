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
	redisKeyPrefix = "ayur"
	redisScanCount = 200
)

// redisCache stores JSON encoded entries under a per-table namespace with native key TTLs.
type redisCache[V any] struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisCache creates a new Redis-backed cache instance for one table.
func NewRedisCache[V any](client *redis.Client, name string, ttl time.Duration) Cache[V] {
	return &redisCache[V]{
		client:    client,
		namespace: fmt.Sprintf("%s:%s:", redisKeyPrefix, name),
		ttl:       ttl,
	}
}

func (c *redisCache[V]) key(k string) string {
	return c.namespace + k
}

func (c *redisCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var v V

	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}

	return v, true, nil
}

func (c *redisCache[V]) Set(ctx context.Context, key string, v V) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	if err := c.client.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *redisCache[V]) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Purge deletes every key of the table namespace.
func (c *redisCache[V]) Purge(ctx context.Context) error {
	return c.scan(ctx, func(keys []string) error {
		return c.client.Del(ctx, keys...).Err()
	})
}

func (c *redisCache[V]) Size(ctx context.Context) (int64, error) {
	var n int64
	err := c.scan(ctx, func(keys []string) error {
		n += int64(len(keys))
		return nil
	})
	return n, err
}

func (c *redisCache[V]) Close() error {
	return nil
}

func (c *redisCache[V]) scan(ctx context.Context, fn func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.namespace+"*", redisScanCount).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", c.namespace, err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
