// Package stats reports cache occupancy, pool load and watcher progress.
package stats

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/cache"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/pool"
)

const statsPrinterInterval = 15 * time.Second

type (
	// StatsOpts contains configuration options for creating a new Stats instance.
	StatsOpts struct {
		Tables map[string]cache.Table // Cache tables by name
		Pools  map[string]*pool.Pool  // Worker pools by name
		Logg   *slog.Logger           // Structured logger
	}

	// Stats collects and reports service statistics.
	Stats struct {
		tables      map[string]cache.Table
		pools       map[string]*pool.Pool
		logg        *slog.Logger
		stopCh      chan struct{}
		latestBlock atomic.Uint64
	}

	// PoolStats is the load of one worker pool.
	PoolStats struct {
		QueueSize     uint64 `json:"queueSize"`
		ActiveWorkers int64  `json:"activeWorkers"`
	}

	// Snapshot is the statistics payload served by the API.
	Snapshot struct {
		LatestBlock uint64               `json:"latestBlock"`
		Caches      map[string]int64     `json:"caches"`
		Pools       map[string]PoolStats `json:"pools"`
	}
)

// New creates a new Stats instance.
func New(o StatsOpts) *Stats {
	return &Stats{
		tables: o.Tables,
		pools:  o.Pools,
		logg:   o.Logg,
		stopCh: make(chan struct{}),
	}
}

// SetLatestBlock updates the latest block seen by the watcher.
func (s *Stats) SetLatestBlock(v uint64) {
	s.latestBlock.Store(v)
}

// GetLatestBlock returns the latest block seen by the watcher.
func (s *Stats) GetLatestBlock() uint64 {
	return s.latestBlock.Load()
}

// Stop stops the stats printer goroutine.
func (s *Stats) Stop() {
	close(s.stopCh)
	s.logg.Debug("stats stopped")
}

// Snapshot returns current statistics. A cache whose size cannot be read is
// reported as -1.
func (s *Stats) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{
		LatestBlock: s.GetLatestBlock(),
		Caches:      make(map[string]int64, len(s.tables)),
		Pools:       make(map[string]PoolStats, len(s.pools)),
	}

	for name, table := range s.tables {
		size, err := table.Size(ctx)
		if err != nil {
			s.logg.Error("failed to fetch cache size", "cache", name, "error", err)
			size = -1
		}
		snap.Caches[name] = size
	}

	for name, p := range s.pools {
		snap.Pools[name] = PoolStats{
			QueueSize:     p.Size(),
			ActiveWorkers: p.ActiveWorkers(),
		}
	}

	return snap
}

// StartStatsPrinter periodically logs statistics until Stop is called.
func (s *Stats) StartStatsPrinter() {
	ticker := time.NewTicker(statsPrinterInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.logg.Debug("stats printer shutting down")
			return
		case <-ticker.C:
			snap := s.Snapshot(context.Background())
			s.logg.Info("service statistics",
				"latest_block", snap.LatestBlock,
				"caches", snap.Caches,
				"pools", snap.Pools,
			)
		}
	}
}
