package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
)

// instrumented counts hits, misses and backend errors of a cache table.
type instrumented[V any] struct {
	Cache[V]
	name   string
	logg   *slog.Logger
	hits   *metrics.Counter
	misses *metrics.Counter
	errors *metrics.Counter
}

func newInstrumented[V any](name string, c Cache[V], logg *slog.Logger) Cache[V] {
	return &instrumented[V]{
		Cache:  c,
		name:   name,
		logg:   logg,
		hits:   metrics.GetOrCreateCounter(fmt.Sprintf(`ayur_cache_hits_total{cache=%q}`, name)),
		misses: metrics.GetOrCreateCounter(fmt.Sprintf(`ayur_cache_misses_total{cache=%q}`, name)),
		errors: metrics.GetOrCreateCounter(fmt.Sprintf(`ayur_cache_errors_total{cache=%q}`, name)),
	}
}

func (c *instrumented[V]) Get(ctx context.Context, key string) (V, bool, error) {
	v, ok, err := c.Cache.Get(ctx, key)
	switch {
	case err != nil:
		c.errors.Inc()
	case ok:
		c.hits.Inc()
	default:
		c.misses.Inc()
	}
	return v, ok, err
}

func (c *instrumented[V]) Set(ctx context.Context, key string, v V) error {
	err := c.Cache.Set(ctx, key, v)
	if err != nil {
		c.errors.Inc()
	}
	return err
}

func (c *instrumented[V]) Purge(ctx context.Context) error {
	if err := c.Cache.Purge(ctx); err != nil {
		c.errors.Inc()
		return err
	}
	c.logg.Debug("cache purged", "name", c.name)
	return nil
}
