// Package actor resolves the batches that belong to a supply chain party and
// lists recent batch creations.
package actor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/batch"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/events"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/identity"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/pool"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

type (
	// ResolverOpts contains configuration options for creating a new Resolver.
	ResolverOpts struct {
		Chain      chain.Chain        // Ledger access
		Negotiator *schema.Negotiator // Schema generation selection
		Batches    *batch.Resolver    // Details reads
		Events     *events.Fetcher    // Creation event queries
		Identity   identity.Provider  // Current actor lookup
		Pool       *pool.Pool         // Fan-out pool
		Logg       *slog.Logger       // Structured logger
	}

	// Resolver maps usernames, names and creation events to batch listings.
	Resolver struct {
		chain      chain.Chain
		negotiator *schema.Negotiator
		batches    *batch.Resolver
		events     *events.Fetcher
		identity   identity.Provider
		pool       *pool.Pool
		logg       *slog.Logger
	}
)

// New creates a new Resolver instance.
func New(o ResolverOpts) *Resolver {
	return &Resolver{
		chain:      o.Chain,
		negotiator: o.Negotiator,
		batches:    o.Batches,
		events:     o.Events,
		identity:   o.Identity,
		pool:       o.Pool,
		logg:       o.Logg,
	}
}

// GetBatchesForUsername lists the batches of a farmer. An empty username means
// the current actor. The V2 username index is consulted first; when it yields
// nothing the legacy account index is used. Ids whose details cannot be read
// are skipped.
func (r *Resolver) GetBatchesForUsername(ctx context.Context, username string) []provenance.BatchSummary {
	if username == "" && r.identity != nil {
		username = r.identity.CurrentActorID(ctx)
	}
	if username == "" {
		r.logg.Debug("no username for batch lookup")
		return []provenance.BatchSummary{}
	}

	ids := r.FindBatchesByFarmerUsername(ctx, username)
	if len(ids) == 0 {
		ids = r.legacyBatchIDs(ctx, username)
	}
	if len(ids) == 0 {
		r.logg.Debug("no batches for username", "username", username)
		return []provenance.BatchSummary{}
	}

	blocks := make([]uint64, len(ids))
	return r.summaries(ctx, ids, blocks)
}

// FindBatchesByFarmerUsername returns the ids in the V2 username index, or
// nothing when the index is unavailable or fails.
func (r *Resolver) FindBatchesByFarmerUsername(ctx context.Context, username string) []string {
	return r.lookup(ctx, schema.OpBatchIDsByUsername, username)
}

// FindBatchesByFarmerName returns the ids in the V2 farmer name index, or
// nothing when the index is unavailable or fails.
func (r *Resolver) FindBatchesByFarmerName(ctx context.Context, name string) []string {
	return r.lookup(ctx, schema.OpBatchIDsByName, name)
}

func (r *Resolver) lookup(ctx context.Context, op schema.Operation, key string) []string {
	method, _, err := r.negotiator.Method(op)
	if err != nil {
		return []string{}
	}

	raw, err := r.chain.Call(ctx, method, key)
	if err != nil {
		r.logg.Warn("batch index lookup failed", "method", method, "key", key, "error", err)
		return []string{}
	}
	if ids := schema.Strings(raw); ids != nil {
		return ids
	}
	return []string{}
}

// legacyBatchIDs resolves the username to an account and reads the account's batch ids.
func (r *Resolver) legacyBatchIDs(ctx context.Context, username string) []string {
	if !r.negotiator.Supports(schema.OpAccountByUsername) || !r.negotiator.Supports(schema.OpFarmerBatchIDs) {
		return nil
	}

	accountMethod, _, _ := r.negotiator.Method(schema.OpAccountByUsername)
	raw, err := r.chain.Call(ctx, accountMethod, username)
	if err != nil {
		r.logg.Warn("account lookup failed", "username", username, "error", err)
		return nil
	}

	account := schema.Address(raw)
	if account == (common.Address{}) {
		return nil
	}

	idsMethod, _, _ := r.negotiator.Method(schema.OpFarmerBatchIDs)
	raw, err = r.chain.Call(ctx, idsMethod, account)
	if err != nil {
		r.logg.Warn("account batch ids lookup failed", "account", account.Hex(), "error", err)
		return nil
	}
	return schema.Strings(raw)
}

// GetFarmerBatches lists every batch created between from and to (events.Latest
// for the chain head), most recent first. Failing creation event queries are
// returned to the caller; ids whose details cannot be read are skipped.
func (r *Resolver) GetFarmerBatches(ctx context.Context, from, to uint64) ([]provenance.BatchSummary, error) {
	window, err := r.events.Resolve(ctx, from, to)
	if err != nil {
		return nil, err
	}

	created, err := r.events.FetchStrict(ctx, provenance.KindBatchCreated, "", window)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(created))
	blocks := make([]uint64, 0, len(created))
	for _, e := range created {
		id, _ := e.Payload["batchId"].(string)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		blocks = append(blocks, e.BlockNumber)
	}

	out := r.summaries(ctx, ids, blocks)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].BlockNumber > out[j].BlockNumber
	})
	return out, nil
}

// ListBatchIDs returns the ids of every created batch, in creation order. V2
// creation events are used when there are any, legacy ones otherwise.
func (r *Resolver) ListBatchIDs(ctx context.Context) ([]string, error) {
	window, err := r.events.Resolve(ctx, 0, events.Latest)
	if err != nil {
		return nil, err
	}

	op := schema.Events[provenance.KindBatchCreated]

	var created []provenance.Event
	if r.chain.HasEvent(op.V2) {
		created, err = r.events.FetchNamed(ctx, op.V2, "", window)
		if err != nil {
			r.logg.Warn("V2 creation event query failed", "error", err)
		}
	}
	if len(created) == 0 && r.chain.HasEvent(op.Legacy) {
		created, err = r.events.FetchNamed(ctx, op.Legacy, "", window)
		if err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{}, len(created))
	ids := make([]string, 0, len(created))
	for _, e := range created {
		id, _ := e.Payload["batchId"].(string)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// summaries resolves the details of each id concurrently, keeping the order of ids.
func (r *Resolver) summaries(ctx context.Context, ids []string, blocks []uint64) []provenance.BatchSummary {
	if len(ids) == 0 {
		return []provenance.BatchSummary{}
	}

	resolved := make([]*provenance.BatchSummary, len(ids))

	group := r.pool.Group()
	for i, id := range ids {
		group.Submit(func() {
			d, err := r.batches.GetBatchDetails(ctx, id)
			if err != nil {
				r.logg.Warn("batch details unavailable", "batch_id", id, "error", err)
				return
			}
			if d == nil {
				r.logg.Debug("indexed batch does not exist", "batch_id", id)
				return
			}
			s := d.Summary(blocks[i])
			resolved[i] = &s
		})
	}
	if err := group.Wait(); err != nil {
		r.logg.Error("batch details group failed", "error", err)
	}

	out := make([]provenance.BatchSummary, 0, len(ids))
	for _, s := range resolved {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}
