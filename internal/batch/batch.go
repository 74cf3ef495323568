// Package batch resolves the canonical state of a batch and the records kept
// next to it in contract storage.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/cache"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const (
	detailsKeyPrefix   = "batch_"
	defaultIPFSGateway = "https://gateway.pinata.cloud"
)

type (
	// MappingReader looks up the content hash stored for a batch photo hash.
	MappingReader interface {
		GetMapping(string) (string, bool, error)
	}

	// ResolverOpts contains configuration options for creating a new Resolver.
	ResolverOpts struct {
		Chain       chain.Chain                          // Ledger access
		Negotiator  *schema.Negotiator                   // Schema generation selection
		Cache       cache.Cache[provenance.BatchDetails] // Details table
		Mappings    MappingReader                        // Photo hash to IPFS hash store, optional
		IPFSGateway string                               // Gateway base URL for image links
		Logg        *slog.Logger                         // Structured logger
	}

	// Resolver fetches batch details through the details cache and reads the
	// collection, inspection, product and inventory records directly.
	Resolver struct {
		chain      chain.Chain
		negotiator *schema.Negotiator
		cache      cache.Cache[provenance.BatchDetails]
		mappings   MappingReader
		gateway    string
		logg       *slog.Logger
	}
)

// New creates a new Resolver instance.
func New(o ResolverOpts) *Resolver {
	gateway := strings.TrimRight(o.IPFSGateway, "/")
	if gateway == "" {
		gateway = defaultIPFSGateway
	}

	return &Resolver{
		chain:      o.Chain,
		negotiator: o.Negotiator,
		cache:      o.Cache,
		mappings:   o.Mappings,
		gateway:    gateway,
		logg:       o.Logg,
	}
}

// DetailsKey returns the details cache key of a batch.
func DetailsKey(batchID string) string {
	return detailsKeyPrefix + batchID
}

// GetBatchDetails returns the canonical details of a batch, or nil when the
// batch does not exist. Missing batches and failed reads are never cached.
func (r *Resolver) GetBatchDetails(ctx context.Context, batchID string) (*provenance.BatchDetails, error) {
	if batchID == "" {
		return nil, nil
	}

	key := DetailsKey(batchID)
	cached, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logg.Warn("details cache lookup failed", "batch_id", batchID, "error", err)
	}
	if ok {
		return &cached, nil
	}

	method, _, err := r.negotiator.Method(schema.OpBatchDetails)
	if err != nil {
		return nil, err
	}

	raw, err := r.chain.Call(ctx, method, batchID)
	if err != nil {
		return nil, provenance.ReadError(method, err)
	}

	details := schema.BatchDetails(raw)
	if !details.Exists() {
		r.logg.Debug("batch does not exist", "batch_id", batchID, "method", method)
		return nil, nil
	}

	if err := r.cache.Set(ctx, key, details); err != nil {
		r.logg.Warn("details cache store failed", "batch_id", batchID, "error", err)
	}

	return &details, nil
}

// Invalidate drops the cached details of a batch.
func (r *Resolver) Invalidate(ctx context.Context, batchID string) error {
	return r.cache.Delete(ctx, DetailsKey(batchID))
}

// GetCollection reads the collection record stored for a farmer batch.
func (r *Resolver) GetCollection(ctx context.Context, batchID string) (provenance.Collection, error) {
	raw, err := r.read(ctx, schema.OpGetCollection, batchID)
	if err != nil {
		return provenance.Collection{}, err
	}
	return schema.Collection(raw), nil
}

// GetInspection reads the inspection record stored for a batch.
func (r *Resolver) GetInspection(ctx context.Context, batchID string) (provenance.Inspection, error) {
	raw, err := r.read(ctx, schema.OpGetInspection, batchID)
	if err != nil {
		return provenance.Inspection{}, err
	}
	return schema.Inspection(raw), nil
}

// GetProduct reads a product record by product id.
func (r *Resolver) GetProduct(ctx context.Context, productID string) (provenance.Product, error) {
	raw, err := r.read(ctx, schema.OpGetProduct, productID)
	if err != nil {
		return provenance.Product{}, err
	}
	return schema.Product(raw), nil
}

// GetInventory reads the distributor inventory record of a batch.
func (r *Resolver) GetInventory(ctx context.Context, batchID string) (provenance.Inventory, error) {
	raw, err := r.read(ctx, schema.OpGetInventory, batchID)
	if err != nil {
		return provenance.Inventory{}, err
	}
	return schema.Inventory(raw), nil
}

func (r *Resolver) read(ctx context.Context, op schema.Operation, key string) (schema.RawResult, error) {
	method, _, err := r.negotiator.Method(op)
	if err != nil {
		return schema.RawResult{}, err
	}

	raw, err := r.chain.Call(ctx, method, key)
	if err != nil {
		return schema.RawResult{}, provenance.ReadError(method, err)
	}
	return raw, nil
}

// ImageURL builds the gateway link of a batch photo. An IPFS hash embedded in the
// farm location wins over the photo hash mapping. It returns "" when neither is known.
func (r *Resolver) ImageURL(_ context.Context, d *provenance.BatchDetails) string {
	if d == nil {
		return ""
	}

	if loc := schema.ParseFarmLocation(d.FarmLocation); loc.IPFS != "" {
		return r.gatewayURL(loc.IPFS)
	}

	if r.mappings == nil || d.PhotoHash == "" {
		return ""
	}

	ipfsHash, ok, err := r.mappings.GetMapping(d.PhotoHash)
	if err != nil {
		r.logg.Warn("photo mapping lookup failed", "photo_hash", d.PhotoHash, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return r.gatewayURL(ipfsHash)
}

func (r *Resolver) gatewayURL(ipfsHash string) string {
	return fmt.Sprintf("%s/ipfs/%s", r.gateway, ipfsHash)
}
