// Package pool provides bounded worker pools. A pool either processes ledger
// blocks pushed by the watcher or runs task groups fanned out by a single
// request and joined by the caller.
package pool

import (
	"context"
	"log/slog"

	"github.com/alitto/pond/v2"
)

type (
	// BlockProcessor handles one block pushed to the pool.
	BlockProcessor interface {
		ProcessBlock(context.Context, uint64) error
	}

	// PoolOpts contains configuration options for creating a new Pool.
	PoolOpts struct {
		Logg        *slog.Logger   // Structured logger
		WorkerCount int            // Number of worker goroutines
		Processor   BlockProcessor // Block processor, nil for fan-out only pools
	}

	// Pool manages a worker pool for concurrent block processing and request fan-out.
	Pool struct {
		logg       *slog.Logger
		workerPool pond.Pool
		processor  BlockProcessor
	}

	// Group is a set of tasks submitted together and awaited by the submitter.
	// Tasks of a group must not wait on other pool tasks.
	Group interface {
		Submit(tasks ...func()) pond.TaskGroup
		Wait() error
	}
)

// New creates a new Pool instance with the specified number of workers.
func New(o PoolOpts) *Pool {
	return &Pool{
		logg: o.Logg,
		workerPool: pond.NewPool(
			o.WorkerCount,
		),
		processor: o.Processor,
	}
}

// Stop gracefully stops the worker pool, waiting for all in-flight tasks to complete.
func (p *Pool) Stop() {
	p.workerPool.StopAndWait()
}

// Push submits a block for processing asynchronously (non-blocking).
// The block will be processed by an available worker from the pool.
func (p *Pool) Push(block uint64) {
	if p.processor == nil {
		p.logg.Warn("block pushed to a pool without processor", "block_number", block)
		return
	}

	p.workerPool.Submit(func() {
		ctx := context.Background()
		if err := p.processor.ProcessBlock(ctx, block); err != nil {
			p.logg.Error("block processing failed",
				"block_number", block,
				"error", err,
			)
		}
	})
}

// Group creates a task group running on the pool.
func (p *Pool) Group() Group {
	return p.workerPool.NewGroup()
}

// Size returns the number of tasks currently waiting in the queue.
func (p *Pool) Size() uint64 {
	return p.workerPool.WaitingTasks()
}

// ActiveWorkers returns the number of workers currently processing tasks.
func (p *Pool) ActiveWorkers() int64 {
	return p.workerPool.RunningWorkers()
}
