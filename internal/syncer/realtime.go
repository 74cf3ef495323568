package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

const (
	// resubscribeInterval is the back-off between head subscription attempts
	resubscribeInterval = 2 * time.Second
	// newHeadersBufferSize keeps at most one head waiting while the previous
	// one is queued
	newHeadersBufferSize = 1
)

// BlockQueueFn queues one block for processing.
type BlockQueueFn func(uint64) error

// Stop stops the head subscription.
func (s *Syncer) Stop() {
	if s.realtimeSub != nil {
		s.realtimeSub.Unsubscribe()
		s.logg.Info("realtime subscription stopped")
	}
}

// Start subscribes to new ledger heads, resubscribing on connection failures.
func (s *Syncer) Start() {
	s.realtimeSub = event.ResubscribeErr(resubscribeInterval, s.resubscribeFn())
	s.logg.Info("realtime syncer started")
}

func (s *Syncer) resubscribeFn() event.ResubscribeErrFunc {
	return func(ctx context.Context, err error) (event.Subscription, error) {
		if err != nil {
			s.logg.Warn("resubscribing after connection failure", "error", err)
		}
		return s.subscribeHeads(ctx, s.queueRealtimeBlock)
	}
}

// subscribeHeads forwards every received head to fn until the subscription
// fails or is unsubscribed.
func (s *Syncer) subscribeHeads(ctx context.Context, fn BlockQueueFn) (ethereum.Subscription, error) {
	headers := make(chan *types.Header, newHeadersBufferSize)
	sub, err := s.heads.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	s.logg.Info("realtime syncer subscribed to new heads")

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()

		for {
			select {
			case header := <-headers:
				s.handleHead(header, fn)
			case err := <-sub.Err():
				if err != nil {
					s.logg.Error("head subscription error", "error", err)
				}
				return err
			case <-quit:
				s.logg.Info("realtime syncer shutting down")
				return nil
			}
		}
	}), nil
}

func (s *Syncer) handleHead(header *types.Header, fn BlockQueueFn) {
	if header == nil || header.Number == nil {
		return
	}

	blockNumber := header.Number.Uint64()
	if err := fn(blockNumber); err != nil {
		s.logg.Error("failed to queue realtime block", "block_number", blockNumber, "error", err)
		return
	}
	s.logg.Debug("queued new block", "block_number", blockNumber)
}

// queueRealtimeBlock queues a head for processing and advances the upper bound.
// A head at or below the current bound is a reorganization or a repeat; it is
// still processed so replaced logs purge the caches, but the bound stays.
func (s *Syncer) queueRealtimeBlock(blockNumber uint64) error {
	s.pool.Push(blockNumber)
	s.stats.SetLatestBlock(blockNumber)

	upper, err := s.db.GetUpperBound()
	if err != nil {
		return fmt.Errorf("failed to read upper bound: %w", err)
	}
	if blockNumber <= upper {
		metrics.GetOrCreateCounter(`ayur_watcher_heads_total{kind="replayed"}`).Inc()
		s.logg.Debug("head at or below upper bound", "block_number", blockNumber, "upper_bound", upper)
		return nil
	}

	metrics.GetOrCreateCounter(`ayur_watcher_heads_total{kind="new"}`).Inc()
	return s.db.SetUpperBound(blockNumber)
}
