// Package processor turns ledger blocks into relayed lifecycle events. Every
// contract log of a block is decoded, the read caches are purged so readers
// observe the new state, and each lifecycle event is routed to the publisher.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"github.com/tarshitsr24/Temp-ayur-trace/db"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/cache"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/events"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/router"
)

type (
	// ProcessorOpts contains configuration options for creating a new Processor.
	ProcessorOpts struct {
		Chain           chain.Chain            // Ledger access
		DB              db.BlockStore          // Processed block ledger
		Router          *router.Router         // Event router
		Tables          map[string]cache.Table // Read caches purged when contract events land
		ContractAddress string                 // Watched contract, copied onto relayed events
		Logg            *slog.Logger           // Structured logger
	}

	// Processor handles block processing and event routing.
	Processor struct {
		chain           chain.Chain
		db              db.BlockStore
		router          *router.Router
		tables          map[string]cache.Table
		contractAddress string
		logg            *slog.Logger
	}
)

// NewProcessor creates a new Processor instance with the provided options.
func NewProcessor(o ProcessorOpts) *Processor {
	return &Processor{
		chain:           o.Chain,
		db:              o.DB,
		router:          o.Router,
		tables:          o.Tables,
		contractAddress: o.ContractAddress,
		logg:            o.Logg,
	}
}

// ProcessBlock fetches the contract logs of one block, purges the read caches
// when there are any, routes lifecycle events and marks the block processed.
// Logs without a lifecycle kind only trigger the purge.
func (p *Processor) ProcessBlock(ctx context.Context, blockNumber uint64) error {
	logs, err := p.chain.FilterEvents(ctx, chain.EventQuery{
		FromBlock: blockNumber,
		ToBlock:   blockNumber,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("failed to fetch logs for block %d: %w", blockNumber, err)
	}

	if len(logs) > 0 {
		p.purge(ctx, blockNumber)
		timestamp := p.blockTimestamp(ctx, blockNumber)

		for _, log := range logs {
			kind, ok := schema.KindOf(log.Name)
			if !ok {
				continue
			}
			metrics.GetOrCreateCounter(fmt.Sprintf(`ayur_watcher_events_total{kind=%q}`, kind)).Inc()

			if err := p.router.ProcessLog(ctx, router.LogPayload{
				Event:           events.Convert(kind, log, ""),
				ContractAddress: p.contractAddress,
				LogIndex:        log.LogIndex,
				Timestamp:       timestamp,
			}); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				return fmt.Errorf("failed to process log %s:%d: %w", log.TxHash.Hex(), log.LogIndex, err)
			}
		}
	}

	if err := p.db.SetValue(blockNumber); err != nil {
		return fmt.Errorf("failed to persist block %d: %w", blockNumber, err)
	}

	p.logg.Debug("successfully processed block", "block", blockNumber, "log_count", len(logs))
	return nil
}

func (p *Processor) purge(ctx context.Context, blockNumber uint64) {
	for name, table := range p.tables {
		if err := table.Purge(ctx); err != nil {
			p.logg.Error("cache purge failed", "cache", name, "block", blockNumber, "error", err)
		}
	}
}

// blockTimestamp returns 0 when the timestamp cannot be fetched; the event is
// relayed regardless.
func (p *Processor) blockTimestamp(ctx context.Context, blockNumber uint64) uint64 {
	timestamps, err := p.chain.GetBlockTimestamps(ctx, []uint64{blockNumber})
	if err != nil {
		p.logg.Warn("block timestamp lookup failed", "block", blockNumber, "error", err)
		return 0
	}
	return timestamps[blockNumber]
}
