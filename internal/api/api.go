// Package api serves the provenance engine over HTTP: batch reads, provenance
// chains, actor listings, lifecycle writes and the operational endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/uptrace/bunrouter"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/identity"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/lifecycle"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/stats"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const (
	metricsPath = "/metrics"
	statsPath   = "/stats"
	healthPath  = "/health"

	requestIDHeader = "X-Request-ID"
)

type (
	// BatchReader reads batch level records.
	BatchReader interface {
		GetBatchDetails(ctx context.Context, batchID string) (*provenance.BatchDetails, error)
		ImageURL(ctx context.Context, d *provenance.BatchDetails) string
		GetCollection(ctx context.Context, batchID string) (provenance.Collection, error)
		GetInspection(ctx context.Context, batchID string) (provenance.Inspection, error)
		GetProduct(ctx context.Context, productID string) (provenance.Product, error)
		GetInventory(ctx context.Context, batchID string) (provenance.Inventory, error)
	}

	// ChainReader assembles provenance chains.
	ChainReader interface {
		GetChainForBatch(ctx context.Context, batchID string, from, to uint64) (provenance.Chain, bool, error)
	}

	// ActorIndex lists batches by actor and across the ledger.
	ActorIndex interface {
		GetBatchesForUsername(ctx context.Context, username string) []provenance.BatchSummary
		FindBatchesByFarmerUsername(ctx context.Context, username string) []string
		FindBatchesByFarmerName(ctx context.Context, name string) []string
		GetFarmerBatches(ctx context.Context, from, to uint64) ([]provenance.BatchSummary, error)
		ListBatchIDs(ctx context.Context) ([]string, error)
	}

	// LifecycleWriter submits confirmed lifecycle writes.
	LifecycleWriter interface {
		CreateBatch(context.Context, lifecycle.CreateBatchInput) (*chain.Receipt, error)
		AddCollection(context.Context, lifecycle.CollectionInput) (*chain.Receipt, error)
		AddInspection(context.Context, lifecycle.InspectionInput) (*chain.Receipt, error)
		CreateProduct(context.Context, lifecycle.ProductInput) (*chain.Receipt, error)
		RecordReception(context.Context, lifecycle.ReceptionInput) (*chain.Receipt, error)
		RecordDispatch(context.Context, lifecycle.DispatchInput) (*chain.Receipt, error)
		SyncProfile(context.Context) (*chain.Receipt, error)
	}

	// MetaStore keeps off-chain batch metadata.
	MetaStore interface {
		GetBatchMeta(batchID string) (map[string]any, bool, error)
		MergeBatchMeta(batchID string, meta map[string]any) (map[string]any, error)
	}

	// StatsReporter provides the /stats payload.
	StatsReporter interface {
		Snapshot(context.Context) stats.Snapshot
	}

	// APIOpts contains configuration options for creating the HTTP router.
	APIOpts struct {
		Batches BatchReader             // Batch detail reads
		Chains  ChainReader             // Provenance chain aggregation
		Actors  ActorIndex              // Actor and ledger wide listings
		Writer  LifecycleWriter         // Lifecycle writes
		Meta    MetaStore               // Off-chain batch metadata, optional
		Stats   StatsReporter           // Service statistics, optional
		Auth    *identity.Authenticator // Request identity extraction
		Logg    *slog.Logger            // Structured logger
	}

	api struct {
		batches BatchReader
		chains  ChainReader
		actors  ActorIndex
		writer  LifecycleWriter
		meta    MetaStore
		stats   StatsReporter
		auth    *identity.Authenticator
		logg    *slog.Logger
	}
)

// New creates a new HTTP router with all API endpoints registered.
func New(o APIOpts) *bunrouter.Router {
	a := &api{
		batches: o.Batches,
		chains:  o.Chains,
		actors:  o.Actors,
		writer:  o.Writer,
		meta:    o.Meta,
		stats:   o.Stats,
		auth:    o.Auth,
		logg:    o.Logg,
	}

	router := bunrouter.New(
		bunrouter.Use(a.requestID),
		bunrouter.Use(a.errorHandler),
		bunrouter.Use(a.identity),
	)

	router.GET(metricsPath, metricsHandler())
	router.GET(statsPath, a.statsHandler)
	router.GET(healthPath, healthHandler())

	router.GET("/batches", a.farmerBatches)
	router.GET("/batches/ids", a.batchIDs)
	router.GET("/batches/:id", a.batchDetails)
	router.GET("/batches/:id/chain", a.batchChain)
	router.GET("/batches/:id/collection", a.collection)
	router.GET("/batches/:id/inspection", a.inspection)
	router.GET("/batches/:id/inventory", a.inventory)
	router.GET("/products/:id", a.product)
	if a.meta != nil {
		router.GET("/batches/:id/meta", a.batchMeta)
		router.PATCH("/batches/:id/meta", a.mergeBatchMeta)
	}

	router.GET("/farmers/:username/batches", a.usernameBatches)
	router.GET("/me/batches", a.myBatches)
	router.GET("/search/username/:username", a.searchByUsername)
	router.GET("/search/name/:name", a.searchByName)

	router.POST("/batches", write(a, a.writer.CreateBatch))
	router.POST("/collections", write(a, a.writer.AddCollection))
	router.POST("/inspections", write(a, a.writer.AddInspection))
	router.POST("/products", write(a, a.writer.CreateProduct))
	router.POST("/receptions", write(a, a.writer.RecordReception))
	router.POST("/dispatches", write(a, a.writer.RecordDispatch))
	router.POST("/profile", a.syncProfile)

	return router
}

func (a *api) requestID(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		id := req.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		a.logg.Debug("api request", "method", req.Method, "path", req.URL.Path, "request_id", id)
		return next(w, req)
	}
}

func (a *api) identity(next bunrouter.HandlerFunc) bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, req bunrouter.Request) error {
		if a.auth == nil {
			return next(w, req)
		}

		id, ok, err := a.auth.Authenticate(req.Request)
		if err != nil {
			return err
		}
		if !ok {
			return next(w, req)
		}
		return next(w, req.WithContext(identity.WithIdentity(req.Context(), id)))
	}
}

func metricsHandler() bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		metrics.WritePrometheus(w, true)
		return nil
	}
}

func (a *api) statsHandler(w http.ResponseWriter, req bunrouter.Request) error {
	if a.stats == nil {
		return bunrouter.JSON(w, bunrouter.H{})
	}
	return bunrouter.JSON(w, a.stats.Snapshot(req.Context()))
}

func healthHandler() bunrouter.HandlerFunc {
	return func(w http.ResponseWriter, _ bunrouter.Request) error {
		return bunrouter.JSON(w, bunrouter.H{"status": "healthy"})
	}
}
