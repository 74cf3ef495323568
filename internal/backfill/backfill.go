// Package backfill re-queues ledger blocks the watcher has not processed yet.
// It periodically checks for gaps between the tracked bounds and pushes them to
// the watcher pool in batches.
package backfill

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tarshitsr24/Temp-ayur-trace/db"
)

const (
	idleCheckInterval = 60 * time.Second
	busyCheckInterval = 250 * time.Millisecond
	// The queue counts as idle up to this many waiting blocks.
	minQueueSizeForIdleCheck = 1

	defaultBatchSize = 100
)

type (
	// BlockQueue accepts blocks for asynchronous processing and reports its backlog.
	BlockQueue interface {
		Push(uint64)
		Size() uint64
	}

	// BackfillOpts contains configuration options for creating a new Backfill.
	BackfillOpts struct {
		BatchSize int           // Maximum number of blocks to queue per backfill run
		DB        db.BlockStore // Processed block ledger
		Logg      *slog.Logger  // Structured logger
		Pool      BlockQueue    // Watcher pool
	}

	// Backfill manages periodic backfilling of missed blocks.
	Backfill struct {
		batchSize int
		db        db.BlockStore
		logg      *slog.Logger
		pool      BlockQueue
		stopCh    chan struct{}
		stopOnce  sync.Once
		ticker    *time.Ticker
	}
)

// New creates a new Backfill instance with the provided options.
func New(o BackfillOpts) *Backfill {
	batchSize := o.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Backfill{
		batchSize: batchSize,
		db:        o.DB,
		logg:      o.Logg,
		pool:      o.Pool,
		stopCh:    make(chan struct{}),
		ticker:    time.NewTicker(idleCheckInterval),
	}
}

// Stop stops the backfill ticker and signals shutdown.
func (b *Backfill) Stop() {
	b.stopOnce.Do(func() {
		b.ticker.Stop()
		close(b.stopCh)
		b.logg.Info("backfill stopped")
	})
}

// Start runs the backfill on every tick while the watcher queue is idle.
func (b *Backfill) Start() {
	b.logg.Info("backfill started", "batch_size", b.batchSize)

	for {
		select {
		case <-b.stopCh:
			b.logg.Debug("backfill shutting down")
			return
		case <-b.ticker.C:
			queueSize := b.pool.Size()
			if queueSize > minQueueSizeForIdleCheck {
				b.logg.Debug("skipping backfill tick due to busy queue", "queue_size", queueSize)
				continue
			}

			queued, err := b.Run(true)
			if err != nil {
				b.logg.Error("backfill run failed", "error", err)
				continue
			}
			if queued > 0 {
				b.logg.Debug("backfill tick queued blocks", "queued", queued)
			}
		}
	}
}

// Run queues up to one batch of missing blocks and returns how many it queued.
// With skipLatest the upper bound is left to the realtime syncer, which may
// still be processing it. The tick interval shortens while a backlog remains.
func (b *Backfill) Run(skipLatest bool) (int, error) {
	lower, err := b.db.GetLowerBound()
	if err != nil {
		return 0, fmt.Errorf("failed to get lower bound: %w", err)
	}

	upper, err := b.db.GetUpperBound()
	if err != nil {
		return 0, fmt.Errorf("failed to get upper bound: %w", err)
	}

	if skipLatest && upper > lower {
		upper--
	}

	if upper < lower {
		return 0, nil
	}

	missingBlocks, err := b.db.GetMissingValuesBitSet(lower, upper)
	if err != nil {
		return 0, fmt.Errorf("failed to get missing blocks bitset: %w", err)
	}

	missingBlocksCount := missingBlocks.Count()
	if missingBlocksCount == 0 {
		b.ticker.Reset(idleCheckInterval)
		return 0, nil
	}

	b.logg.Info("found missing blocks",
		"skip_latest", skipLatest,
		"missing_count", missingBlocksCount,
		"range", fmt.Sprintf("%d-%d", lower, upper),
	)

	buffer := make([]uint, b.batchSize)
	_, buffer = missingBlocks.NextSetMany(uint(lower), buffer)
	for _, blockIdx := range buffer {
		b.pool.Push(uint64(blockIdx))
	}
	pushedCount := len(buffer)

	if missingBlocksCount > uint(pushedCount) {
		b.ticker.Reset(busyCheckInterval)
	} else {
		b.ticker.Reset(idleCheckInterval)
	}

	b.logg.Debug("backfill run complete", "queued", pushedCount, "remaining", missingBlocksCount-uint(pushedCount))
	return pushedCount, nil
}
