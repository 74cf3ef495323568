// Package events performs bounded lifecycle event queries against the ledger.
// Queries are selected by lifecycle kind, batch id and block window; the
// product creation stream is clamped to the most recent blocks of a window.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const (
	// Latest stands for the current chain head as a window upper bound.
	Latest uint64 = math.MaxUint64

	// DefaultProductWindow is the number of recent blocks searched for product creation events.
	DefaultProductWindow uint64 = 1000
)

type (
	// Window is an inclusive block range.
	Window struct {
		From uint64
		To   uint64
	}

	// FetcherOpts contains configuration options for creating a new Fetcher.
	FetcherOpts struct {
		Chain         chain.Chain        // Ledger access
		Negotiator    *schema.Negotiator // Schema generation selection
		ProductWindow uint64             // Product creation search depth, 0 for the default
		Logg          *slog.Logger       // Structured logger
	}

	// Fetcher runs event queries for the aggregator and the actor resolver.
	Fetcher struct {
		chain         chain.Chain
		negotiator    *schema.Negotiator
		productWindow uint64
		logg          *slog.Logger
	}
)

// New creates a new Fetcher instance.
func New(o FetcherOpts) *Fetcher {
	productWindow := o.ProductWindow
	if productWindow == 0 {
		productWindow = DefaultProductWindow
	}

	return &Fetcher{
		chain:         o.Chain,
		negotiator:    o.Negotiator,
		productWindow: productWindow,
		logg:          o.Logg,
	}
}

// Resolve turns the symbolic Latest upper bound into a concrete block number.
func (f *Fetcher) Resolve(ctx context.Context, from, to uint64) (Window, error) {
	if to != Latest {
		return Window{From: from, To: to}, nil
	}

	latest, err := f.chain.GetLatestBlock(ctx)
	if err != nil {
		return Window{}, provenance.ReadError("latest block", err)
	}
	return Window{From: from, To: latest}, nil
}

// Clamp narrows the product creation window to the most recent blocks and
// reports whether it did. Other kinds are returned unchanged.
func (f *Fetcher) Clamp(kind provenance.Kind, w Window) (Window, bool) {
	if kind != provenance.KindProductCreated {
		return w, false
	}
	if w.To > w.From && w.To-w.From > f.productWindow {
		return Window{From: w.To - f.productWindow, To: w.To}, true
	}
	return w, false
}

// Fetch returns the events of a kind within the window. Batch-indexed kinds are
// filtered by batchID unless it is empty; product creation events are never
// filtered by batch. Failures are logged and yield no events.
func (f *Fetcher) Fetch(ctx context.Context, kind provenance.Kind, batchID string, w Window) []provenance.Event {
	events, err := f.FetchStrict(ctx, kind, batchID, w)
	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`ayur_event_query_failures_total{kind=%q}`, kind)).Inc()
		f.logg.Warn("event query failed",
			"kind", kind,
			"batch_id", batchID,
			"from", w.From,
			"to", w.To,
			"error", err,
		)
		return nil
	}
	return events
}

// FetchStrict is Fetch returning the failure to the caller.
func (f *Fetcher) FetchStrict(ctx context.Context, kind provenance.Kind, batchID string, w Window) ([]provenance.Event, error) {
	name, _, err := f.negotiator.EventFor(kind)
	if err != nil {
		return nil, err
	}
	return f.FetchNamed(ctx, name, batchID, w)
}

// FetchNamed queries one concrete contract event, bypassing schema negotiation.
func (f *Fetcher) FetchNamed(ctx context.Context, name string, batchID string, w Window) ([]provenance.Event, error) {
	kind, ok := schema.KindOf(name)
	if !ok {
		return nil, fmt.Errorf("event %s: %w", name, provenance.ErrCapabilityUnavailable)
	}

	q := chain.EventQuery{
		Name:      name,
		FromBlock: w.From,
		ToBlock:   w.To,
	}
	if batchID != "" && kind != provenance.KindProductCreated {
		q.Indexed = []any{batchID}
	}

	raw, err := f.chain.FilterEvents(ctx, q)
	if err != nil {
		return nil, provenance.ReadError(name, err)
	}

	out := make([]provenance.Event, 0, len(raw))
	for _, e := range raw {
		out = append(out, Convert(kind, e, batchID))
	}
	return out, nil
}

// Convert turns a decoded log into a lifecycle event. Indexed string values equal
// to the hash of batchID are restored to batchID; other hashes and addresses
// become hex strings.
func Convert(kind provenance.Kind, e chain.RawEvent, batchID string) provenance.Event {
	var batchHash common.Hash
	if batchID != "" {
		batchHash = crypto.Keccak256Hash([]byte(batchID))
	}

	payload := make(map[string]any, len(e.Args))
	for k, v := range e.Args {
		switch t := v.(type) {
		case common.Hash:
			if batchID != "" && t == batchHash {
				payload[k] = batchID
			} else {
				payload[k] = t.Hex()
			}
		case [32]byte:
			payload[k] = common.Hash(t).Hex()
		case common.Address:
			payload[k] = t.Hex()
		default:
			payload[k] = v
		}
	}

	var txHash string
	if e.TxHash != (common.Hash{}) {
		txHash = e.TxHash.Hex()
	}

	return provenance.Event{
		Kind:        kind,
		Name:        e.Name,
		BlockNumber: e.BlockNumber,
		TxHash:      txHash,
		Payload:     payload,
	}
}
