// Package aggregator reconstructs the provenance chain of a batch from the
// lifecycle event streams and state records of the ledger contract.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/batch"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/cache"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/events"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/pool"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const (
	DefaultProductScanLimit = 10
	DefaultTimestampLimit   = 20
)

var aggregationDuration = metrics.NewHistogram("ayur_chain_aggregation_duration_seconds")

type (
	// AggregatorOpts contains configuration options for creating a new Aggregator.
	AggregatorOpts struct {
		Batches          *batch.Resolver               // Details and state reads
		Events           *events.Fetcher               // Event window queries
		Chain            chain.Chain                   // Block timestamps
		Cache            cache.Cache[provenance.Chain] // Chains table
		Pool             *pool.Pool                    // Fan-out pool
		ProductScanLimit int                           // Product creation events inspected per call
		TimestampLimit   int                           // Blocks resolved for timestamps per call
		Logg             *slog.Logger                  // Structured logger
	}

	// Aggregator builds and caches provenance chains.
	Aggregator struct {
		batches          *batch.Resolver
		events           *events.Fetcher
		chain            chain.Chain
		cache            cache.Cache[provenance.Chain]
		pool             *pool.Pool
		productScanLimit int
		timestampLimit   int
		logg             *slog.Logger
	}
)

// New creates a new Aggregator instance.
func New(o AggregatorOpts) *Aggregator {
	productScanLimit := o.ProductScanLimit
	if productScanLimit <= 0 {
		productScanLimit = DefaultProductScanLimit
	}
	timestampLimit := o.TimestampLimit
	if timestampLimit <= 0 {
		timestampLimit = DefaultTimestampLimit
	}

	return &Aggregator{
		batches:          o.Batches,
		events:           o.Events,
		chain:            o.Chain,
		cache:            o.Cache,
		pool:             o.Pool,
		productScanLimit: productScanLimit,
		timestampLimit:   timestampLimit,
		logg:             o.Logg,
	}
}

// ChainKey returns the chains cache key of a batch and block window.
func ChainKey(batchID string, from, to uint64) string {
	upper := "latest"
	if to != events.Latest {
		upper = strconv.FormatUint(to, 10)
	}
	return fmt.Sprintf("chain_%s_%d_%s", batchID, from, upper)
}

// GetChainForBatch returns the time-ordered lifecycle events of a batch between
// from and to (events.Latest for the chain head). found is false when the batch
// does not exist, in which case the chain is empty and nothing is cached.
// Individual sub-queries that fail contribute no events.
func (a *Aggregator) GetChainForBatch(ctx context.Context, batchID string, from, to uint64) (provenance.Chain, bool, error) {
	empty := provenance.Chain{BatchID: batchID, Events: []provenance.Event{}}

	key := ChainKey(batchID, from, to)
	cached, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logg.Warn("chain cache lookup failed", "batch_id", batchID, "error", err)
	}
	if ok {
		return cached, true, nil
	}

	details, err := a.batches.GetBatchDetails(ctx, batchID)
	if err != nil {
		return empty, false, err
	}
	if details == nil {
		return empty, false, nil
	}

	startedAt := time.Now()
	defer aggregationDuration.UpdateDuration(startedAt)

	window, err := a.events.Resolve(ctx, from, to)
	if err != nil {
		return empty, true, err
	}

	var (
		created, collected, inspected *provenance.Event
		products                      []provenance.Event
		clamped                       bool
		received, dispatched          []provenance.Event
	)

	group := a.pool.Group()
	group.Submit(
		func() { created = a.creation(ctx, batchID, window) },
		func() { collected = a.collection(ctx, batchID, window) },
		func() { inspected = a.inspection(ctx, batchID) },
	)
	if err := group.Wait(); err != nil {
		a.logg.Error("chain sub-query group failed", "batch_id", batchID, "error", err)
	}

	products, clamped = a.products(ctx, batchID, window)

	group = a.pool.Group()
	group.Submit(
		func() { received = a.events.Fetch(ctx, provenance.KindProductReceived, batchID, window) },
		func() { dispatched = a.events.Fetch(ctx, provenance.KindProductDispatched, batchID, window) },
	)
	if err := group.Wait(); err != nil {
		a.logg.Error("chain sub-query group failed", "batch_id", batchID, "error", err)
	}

	result := provenance.Chain{
		BatchID:              batchID,
		Events:               make([]provenance.Event, 0, 3+len(products)+len(received)+len(dispatched)),
		ProductWindowClamped: clamped,
	}
	for _, e := range []*provenance.Event{created, collected, inspected} {
		if e != nil {
			result.Events = append(result.Events, *e)
		}
	}
	result.Events = append(result.Events, products...)
	result.Events = append(result.Events, received...)
	result.Events = append(result.Events, dispatched...)

	a.stampTimestamps(ctx, result.Events)
	provenance.SortByBlock(result.Events)

	if err := a.cache.Set(ctx, key, result); err != nil {
		a.logg.Warn("chain cache store failed", "batch_id", batchID, "error", err)
	}

	a.logg.Debug("chain aggregated",
		"batch_id", batchID,
		"from", window.From,
		"to", window.To,
		"events", len(result.Events),
		"product_window_clamped", clamped,
	)

	return result, true, nil
}

// creation takes the first creation event and fills it with the current batch details.
func (a *Aggregator) creation(ctx context.Context, batchID string, w events.Window) *provenance.Event {
	found := a.events.Fetch(ctx, provenance.KindBatchCreated, batchID, w)
	if len(found) == 0 {
		return nil
	}

	details, err := a.batches.GetBatchDetails(ctx, batchID)
	if err != nil || details == nil {
		a.logg.Warn("creation details unavailable", "batch_id", batchID, "error", err)
		return nil
	}

	e := found[0]
	e.Payload = schema.BatchPayload(*details)
	return &e
}

// collection takes the first collection event and fills it with the stored collection record.
func (a *Aggregator) collection(ctx context.Context, batchID string, w events.Window) *provenance.Event {
	found := a.events.Fetch(ctx, provenance.KindCollectionAdded, batchID, w)
	if len(found) == 0 {
		return nil
	}

	col, err := a.batches.GetCollection(ctx, batchID)
	if err != nil {
		a.logg.Warn("collection read failed", "batch_id", batchID, "error", err)
		return nil
	}

	e := found[0]
	e.Payload = schema.CollectionPayload(col)
	return &e
}

// inspection derives an event from the stored inspection record. Inspections
// carry no log position, so the event sits at block 0.
func (a *Aggregator) inspection(ctx context.Context, batchID string) *provenance.Event {
	insp, err := a.batches.GetInspection(ctx, batchID)
	if err != nil {
		a.logg.Warn("inspection read failed", "batch_id", batchID, "error", err)
		return nil
	}
	if insp.Date == nil || insp.Date.Sign() <= 0 {
		return nil
	}

	insp.BatchID = batchID
	return &provenance.Event{
		Kind:    provenance.KindInspectionAdded,
		Name:    string(provenance.KindInspectionAdded),
		Payload: schema.InspectionPayload(insp),
	}
}

// products scans the first product creation events of the clamped window and
// keeps the products made from batchID.
func (a *Aggregator) products(ctx context.Context, batchID string, w events.Window) ([]provenance.Event, bool) {
	window, clamped := a.events.Clamp(provenance.KindProductCreated, w)

	found := a.events.Fetch(ctx, provenance.KindProductCreated, batchID, window)
	if len(found) > a.productScanLimit {
		found = found[:a.productScanLimit]
	}
	if len(found) == 0 {
		return nil, clamped
	}

	matches := make([]*provenance.Event, len(found))
	group := a.pool.Group()
	for i, e := range found {
		group.Submit(func() {
			productID, _ := e.Payload["productId"].(string)
			if productID == "" {
				return
			}

			p, err := a.batches.GetProduct(ctx, productID)
			if err != nil {
				a.logg.Warn("product read failed", "product_id", productID, "error", err)
				return
			}
			if p.SourceBatchID != batchID {
				return
			}

			e.Payload = schema.ProductPayload(p)
			matches[i] = &e
		})
	}
	if err := group.Wait(); err != nil {
		a.logg.Error("product read group failed", "batch_id", batchID, "error", err)
	}

	var out []provenance.Event
	for _, m := range matches {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, clamped
}

// stampTimestamps adds the block timestamp to events that carry no date of their own.
func (a *Aggregator) stampTimestamps(ctx context.Context, evs []provenance.Event) {
	var (
		blocks []uint64
		seen   = make(map[uint64]struct{})
	)
	for _, e := range evs {
		if e.BlockNumber == 0 || e.HasTimestamp() {
			continue
		}
		if _, ok := seen[e.BlockNumber]; ok {
			continue
		}
		seen[e.BlockNumber] = struct{}{}
		blocks = append(blocks, e.BlockNumber)
	}
	if len(blocks) == 0 {
		return
	}
	if len(blocks) > a.timestampLimit {
		blocks = blocks[:a.timestampLimit]
	}

	timestamps, err := a.chain.GetBlockTimestamps(ctx, blocks)
	if err != nil {
		a.logg.Warn("block timestamp lookup failed", "blocks", len(blocks), "error", err)
		return
	}

	for i := range evs {
		if evs[i].BlockNumber == 0 || evs[i].HasTimestamp() {
			continue
		}
		ts, ok := timestamps[evs[i].BlockNumber]
		if !ok {
			continue
		}
		if evs[i].Payload == nil {
			evs[i].Payload = make(map[string]any, 1)
		}
		evs[i].Payload["timestamp"] = new(big.Int).SetUint64(ts)
	}
}
