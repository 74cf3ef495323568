// Package syncer follows the ledger head. It subscribes to new block headers
// over a websocket and queues every head for the block processor.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/tarshitsr24/Temp-ayur-trace/db"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/stats"
)

// defaultStartBlock indicates to start from the latest block
const defaultStartBlock = 0

type (
	// HeadSubscriber delivers new block headers. *ethclient.Client satisfies it.
	HeadSubscriber interface {
		SubscribeNewHead(context.Context, chan<- *types.Header) (ethereum.Subscription, error)
	}

	// BlockQueue accepts blocks for asynchronous processing.
	BlockQueue interface {
		Push(uint64)
	}

	// SyncerOpts contains configuration options for creating a new Syncer.
	SyncerOpts struct {
		DB                db.BlockStore  // Processed block ledger
		Chain             chain.Chain    // Ledger access for the latest block
		Heads             HeadSubscriber // Header source, dialed from WebSocketEndpoint when nil
		Logg              *slog.Logger   // Structured logger
		Pool              BlockQueue     // Watcher pool
		Stats             *stats.Stats   // Statistics collector
		StartBlock        int64          // Starting block number (0 = latest)
		WebSocketEndpoint string         // WebSocket RPC endpoint for real-time subscriptions
	}

	// Syncer manages real-time ledger synchronization via header subscriptions.
	Syncer struct {
		db          db.BlockStore
		heads       HeadSubscriber
		logg        *slog.Logger
		realtimeSub ethereum.Subscription
		pool        BlockQueue
		stats       *stats.Stats
	}
)

// New creates a new Syncer instance and initializes block bounds.
// An unset lower bound becomes the configured start block, or the latest block;
// the upper bound always moves to the latest block.
func New(o SyncerOpts) (*Syncer, error) {
	ctx := context.Background()

	latestBlock, err := o.Chain.GetLatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest block: %w", err)
	}

	lowerBound, err := o.DB.GetLowerBound()
	if err != nil {
		return nil, err
	}

	if lowerBound == 0 {
		if o.StartBlock > defaultStartBlock {
			lowerBound = uint64(o.StartBlock)
		} else {
			lowerBound = latestBlock
		}

		if err := o.DB.SetLowerBound(lowerBound); err != nil {
			return nil, err
		}
		o.Logg.Info("initialized lower bound", "block", lowerBound)
	}

	if err := o.DB.SetUpperBound(latestBlock); err != nil {
		return nil, err
	}
	o.Stats.SetLatestBlock(latestBlock)

	heads := o.Heads
	if heads == nil {
		if o.WebSocketEndpoint == "" {
			return nil, errors.New("no head source: set a websocket endpoint")
		}
		ethClient, err := ethclient.Dial(o.WebSocketEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to dial websocket endpoint: %w", err)
		}
		heads = ethClient
	}

	return &Syncer{
		db:    o.DB,
		heads: heads,
		logg:  o.Logg,
		pool:  o.Pool,
		stats: o.Stats,
	}, nil
}
