package cache

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

type (
	entry[V any] struct {
		value     V
		expiresAt time.Time
	}

	// mapCache is an in-memory cache implementation using xsync.MapOf for thread-safe operations.
	// Expired entries are dropped lazily on read and by a periodic sweep.
	mapCache[V any] struct {
		xmap     *xsync.MapOf[string, entry[V]]
		ttl      time.Duration
		now      func() time.Time
		stopCh   chan struct{}
		stopOnce sync.Once
	}
)

// NewMapCache creates a new in-memory cache instance. A non-positive sweep
// interval disables the background sweep.
func NewMapCache[V any](ttl time.Duration, sweepInterval time.Duration, clock func() time.Time) Cache[V] {
	if clock == nil {
		clock = time.Now
	}

	c := &mapCache[V]{
		xmap:   xsync.NewMapOf[string, entry[V]](),
		ttl:    ttl,
		now:    clock,
		stopCh: make(chan struct{}),
	}

	if sweepInterval > 0 {
		go c.sweeper(sweepInterval)
	}

	return c
}

func (c *mapCache[V]) Get(_ context.Context, key string) (V, bool, error) {
	var zero V

	e, ok := c.xmap.Load(key)
	if !ok {
		return zero, false, nil
	}

	if c.expired(e) {
		c.evictIfExpired(key)
		return zero, false, nil
	}

	return e.value, true, nil
}

func (c *mapCache[V]) Set(_ context.Context, key string, v V) error {
	c.xmap.Store(key, entry[V]{
		value:     v,
		expiresAt: c.now().Add(c.ttl),
	})
	return nil
}

func (c *mapCache[V]) Delete(_ context.Context, key string) error {
	c.xmap.Delete(key)
	return nil
}

func (c *mapCache[V]) Purge(_ context.Context) error {
	c.xmap.Clear()
	return nil
}

// Size returns the number of live entries.
func (c *mapCache[V]) Size(_ context.Context) (int64, error) {
	var n int64
	c.xmap.Range(func(_ string, e entry[V]) bool {
		if !c.expired(e) {
			n++
		}
		return true
	})
	return n, nil
}

func (c *mapCache[V]) Close() error {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}

// Sweep removes every expired entry.
func (c *mapCache[V]) Sweep() {
	c.xmap.Range(func(key string, e entry[V]) bool {
		if c.expired(e) {
			c.evictIfExpired(key)
		}
		return true
	})
}

func (c *mapCache[V]) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

func (c *mapCache[V]) expired(e entry[V]) bool {
	return !c.now().Before(e.expiresAt)
}

// evictIfExpired deletes the entry only if it is still expired, so a concurrent
// Set is never lost.
func (c *mapCache[V]) evictIfExpired(key string) {
	c.xmap.Compute(key, func(old entry[V], loaded bool) (entry[V], bool) {
		return old, !loaded || c.expired(old)
	})
}
