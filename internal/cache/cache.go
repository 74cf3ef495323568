// Package cache provides the TTL caches that sit in front of ledger reads.
// Each cache is one table (batch details, provenance chains) with a fixed
// time-to-live; expired entries are never returned.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CacheTypeInternal is the in-process xsync map implementation
	CacheTypeInternal = "internal"
	// CacheTypeLRU is the bounded in-process expirable LRU implementation
	CacheTypeLRU = "lru"
	// CacheTypeRedis is the Redis-backed implementation shared between instances
	CacheTypeRedis = "redis"

	defaultSweepInterval = time.Minute
	defaultMaxEntries    = 10_000
)

type (
	// Cache defines a string keyed TTL cache table.
	Cache[V any] interface {
		// Get returns the cached value and whether a live entry exists.
		Get(context.Context, string) (V, bool, error)

		// Set stores a value with the table TTL, replacing any previous entry.
		Set(context.Context, string, V) error

		// Delete removes an entry.
		Delete(context.Context, string) error

		// Purge removes every entry of the table.
		Purge(context.Context) error

		// Size returns the current number of entries.
		Size(context.Context) (int64, error)

		// Close releases background resources.
		Close() error
	}

	// Table is the type independent view of a cache used for maintenance and stats.
	Table interface {
		Purge(context.Context) error
		Size(context.Context) (int64, error)
	}

	// CacheOpts contains configuration options for creating a new Cache instance.
	CacheOpts struct {
		Name          string           // Table name, used as Redis namespace and metric label
		CacheType     string           // Cache implementation type ("internal", "lru" or "redis")
		TTL           time.Duration    // Entry time-to-live
		MaxEntries    int              // Entry bound for the LRU implementation
		SweepInterval time.Duration    // Expired entry sweep interval for the internal implementation
		Redis         *redis.Client    // Redis client (if using Redis cache type)
		Clock         func() time.Time // Time source for the internal implementation, defaults to time.Now
		Logg          *slog.Logger     // Structured logger
	}
)

// New creates a new instrumented Cache instance based on the provided options.
func New[V any](o CacheOpts) Cache[V] {
	o.Logg.Info("initializing cache",
		"name", o.Name,
		"cache_type", o.CacheType,
		"ttl", o.TTL,
	)

	var cache Cache[V]

	switch o.CacheType {
	case CacheTypeInternal:
		cache = NewMapCache[V](o.TTL, o.sweepInterval(), o.Clock)
	case CacheTypeLRU:
		cache = NewLRUCache[V](o.maxEntries(), o.TTL)
	case CacheTypeRedis:
		if o.Redis == nil {
			o.Logg.Warn("redis client not configured, falling back to internal cache", "name", o.Name)
			cache = NewMapCache[V](o.TTL, o.sweepInterval(), o.Clock)
			break
		}
		cache = NewRedisCache[V](o.Redis, o.Name, o.TTL)
	default:
		o.Logg.Warn("unknown cache type, using default internal cache", "cache_type", o.CacheType)
		cache = NewMapCache[V](o.TTL, o.sweepInterval(), o.Clock)
	}

	return newInstrumented(o.Name, cache, o.Logg)
}

func (o CacheOpts) sweepInterval() time.Duration {
	if o.SweepInterval <= 0 {
		return defaultSweepInterval
	}
	return o.SweepInterval
}

func (o CacheOpts) maxEntries() int {
	if o.MaxEntries <= 0 {
		return defaultMaxEntries
	}
	return o.MaxEntries
}
