package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruCache is a bounded in-memory cache evicting the least recently used entry
// once full and expiring entries after the table TTL.
type lruCache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewLRUCache creates a new bounded expirable LRU cache instance.
func NewLRUCache[V any](maxEntries int, ttl time.Duration) Cache[V] {
	return &lruCache[V]{
		lru: expirable.NewLRU[string, V](maxEntries, nil, ttl),
	}
}

func (c *lruCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *lruCache[V]) Set(_ context.Context, key string, v V) error {
	c.lru.Add(key, v)
	return nil
}

func (c *lruCache[V]) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *lruCache[V]) Purge(_ context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *lruCache[V]) Size(_ context.Context) (int64, error) {
	return int64(c.lru.Len()), nil
}

func (c *lruCache[V]) Close() error {
	return nil
}
