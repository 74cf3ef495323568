// Package lifecycle submits the per-role supply chain writes to the ledger
// contract and waits for their confirmation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/identity"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

const unknownActor = "unknown"

var (
	// ErrInvalidInput is returned before submission when a required field is missing.
	ErrInvalidInput = errors.New("invalid input")

	photoHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	profileOps = map[string]schema.Operation{
		"farmer":       schema.OpSetFarmerProfile,
		"collector":    schema.OpSetCollectorProfile,
		"auditor":      schema.OpSetAuditorProfile,
		"manufacturer": schema.OpSetManufacturerProf,
		"distributor":  schema.OpSetDistributorProf,
	}
)

type (
	// MappingWriter persists the content hash of an uploaded batch photo.
	MappingWriter interface {
		PutMapping(photoHash string, ipfsHash string) error
	}

	// Invalidator drops cached batch details after a write.
	Invalidator interface {
		Invalidate(ctx context.Context, batchID string) error
	}

	// WriterOpts contains configuration options for creating a new Writer.
	WriterOpts struct {
		Chain      chain.Chain        // Ledger access
		Negotiator *schema.Negotiator // Schema generation selection
		Identity   identity.Provider  // Current actor lookup
		Mappings   MappingWriter      // Photo hash to IPFS hash store, optional
		Details    Invalidator        // Details cache, optional
		Now        func() time.Time   // Clock for placeholder photo hashes
		Logg       *slog.Logger       // Structured logger
	}

	// Writer performs confirmed contract writes on behalf of the current actor.
	Writer struct {
		chain      chain.Chain
		negotiator *schema.Negotiator
		identity   identity.Provider
		mappings   MappingWriter
		details    Invalidator
		now        func() time.Time
		logg       *slog.Logger
	}

	// CreateBatchInput registers a farmer batch. IPFSHash is stored off-chain
	// against the photo hash once the write confirms.
	CreateBatchInput struct {
		BatchID      string   `json:"batchId"`
		CropType     string   `json:"cropType"`
		Quantity     *big.Int `json:"quantity"`
		HarvestDate  string   `json:"harvestDate"`
		FarmLocation string   `json:"farmLocation"`
		PhotoHash    string   `json:"photoHash"`
		IPFSHash     string   `json:"ipfsHash"`
	}

	// CollectionInput records a collection. CollectorID defaults to the current actor.
	CollectionInput struct {
		FarmerBatchID string   `json:"farmerBatchId"`
		FarmerID      string   `json:"farmerId"`
		CropName      string   `json:"cropName"`
		Quantity      *big.Int `json:"quantity"`
		CollectorID   string   `json:"collectorId"`
	}

	// InspectionInput records an audit. InspectorID defaults to the current actor.
	InspectionInput struct {
		BatchID     string `json:"batchId"`
		InspectorID string `json:"inspectorId"`
		Result      string `json:"result"`
		Notes       string `json:"notes"`
	}

	// ProductInput records a manufactured product. ManufacturerID defaults to the current actor.
	ProductInput struct {
		ProductID         string   `json:"productId"`
		SourceBatchID     string   `json:"sourceBatchId"`
		ProductType       string   `json:"productType"`
		QuantityProcessed *big.Int `json:"quantityProcessed"`
		Wastage           *big.Int `json:"wastage"`
		ProcessingDate    *big.Int `json:"processingDate"`
		ExpiryDate        *big.Int `json:"expiryDate"`
		ManufacturerID    string   `json:"manufacturerId"`
	}

	// ReceptionInput records distributor stock received for a batch.
	ReceptionInput struct {
		BatchID         string   `json:"batchId"`
		HerbType        string   `json:"herbType"`
		Quantity        *big.Int `json:"quantity"`
		StorageLocation string   `json:"storageLocation"`
	}

	// DispatchInput records stock leaving the distributor.
	DispatchInput struct {
		BatchID     string   `json:"batchId"`
		Quantity    *big.Int `json:"quantity"`
		Destination string   `json:"destination"`
	}
)

// New creates a new Writer instance.
func New(o WriterOpts) *Writer {
	now := o.Now
	if now == nil {
		now = time.Now
	}

	return &Writer{
		chain:      o.Chain,
		negotiator: o.Negotiator,
		identity:   o.Identity,
		mappings:   o.Mappings,
		details:    o.Details,
		now:        now,
		logg:       o.Logg,
	}
}

// CreateBatch registers a harvested batch. The V2 form stamps the current
// actor as the farmer. A photo hash that is not 32 bytes of hex is replaced
// by a placeholder derived from the batch id and the current time.
func (w *Writer) CreateBatch(ctx context.Context, in CreateBatchInput) (*chain.Receipt, error) {
	if in.BatchID == "" {
		return nil, fmt.Errorf("%w: batchId is required", ErrInvalidInput)
	}
	if err := requireUint("quantity", in.Quantity); err != nil {
		return nil, err
	}

	photoHash := w.photoHash(in.BatchID, in.PhotoHash)

	method, isV2, err := w.negotiator.Method(schema.OpCreateBatch)
	if err != nil {
		return nil, err
	}

	args := []any{in.BatchID, in.CropType, in.Quantity, in.HarvestDate, in.FarmLocation, [32]byte(photoHash)}
	if isV2 {
		id := w.currentIdentity(ctx)
		args = append(args, id.DisplayName(), id.ActorID)
	}

	receipt, err := w.write(ctx, method, args...)
	if err != nil {
		return nil, err
	}

	if in.IPFSHash != "" && w.mappings != nil {
		if err := w.mappings.PutMapping(photoHash.Hex(), in.IPFSHash); err != nil {
			w.logg.Warn("photo mapping store failed", "batch_id", in.BatchID, "photo_hash", photoHash.Hex(), "error", err)
		}
	}
	w.invalidate(ctx, in.BatchID)

	return receipt, nil
}

// AddCollection records a collector taking over a farmer batch.
func (w *Writer) AddCollection(ctx context.Context, in CollectionInput) (*chain.Receipt, error) {
	if in.FarmerBatchID == "" {
		return nil, fmt.Errorf("%w: farmerBatchId is required", ErrInvalidInput)
	}
	if err := requireUint("quantity", in.Quantity); err != nil {
		return nil, err
	}

	receipt, err := w.writeOp(ctx, schema.OpAddCollection,
		in.FarmerBatchID,
		in.FarmerID,
		in.CropName,
		in.Quantity,
		w.actorOr(ctx, in.CollectorID),
	)
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, in.FarmerBatchID)
	return receipt, nil
}

// AddInspection records an auditor's inspection result for a batch.
func (w *Writer) AddInspection(ctx context.Context, in InspectionInput) (*chain.Receipt, error) {
	if in.BatchID == "" {
		return nil, fmt.Errorf("%w: batchId is required", ErrInvalidInput)
	}

	receipt, err := w.writeOp(ctx, schema.OpAddInspection,
		in.BatchID,
		w.actorOr(ctx, in.InspectorID),
		in.Result,
		in.Notes,
	)
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, in.BatchID)
	return receipt, nil
}

// CreateProduct records a manufactured product made from a source batch.
func (w *Writer) CreateProduct(ctx context.Context, in ProductInput) (*chain.Receipt, error) {
	if in.ProductID == "" || in.SourceBatchID == "" {
		return nil, fmt.Errorf("%w: productId and sourceBatchId are required", ErrInvalidInput)
	}
	for name, v := range map[string]*big.Int{
		"quantityProcessed": in.QuantityProcessed,
		"wastage":           in.Wastage,
		"processingDate":    in.ProcessingDate,
		"expiryDate":        in.ExpiryDate,
	} {
		if err := requireUint(name, v); err != nil {
			return nil, err
		}
	}

	receipt, err := w.writeOp(ctx, schema.OpCreateProduct,
		in.ProductID,
		in.SourceBatchID,
		in.ProductType,
		in.QuantityProcessed,
		in.Wastage,
		in.ProcessingDate,
		in.ExpiryDate,
		w.actorOr(ctx, in.ManufacturerID),
	)
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, in.SourceBatchID)
	return receipt, nil
}

// RecordReception records a distributor receiving a batch into storage.
func (w *Writer) RecordReception(ctx context.Context, in ReceptionInput) (*chain.Receipt, error) {
	if in.BatchID == "" {
		return nil, fmt.Errorf("%w: batchId is required", ErrInvalidInput)
	}
	if err := requireUint("quantity", in.Quantity); err != nil {
		return nil, err
	}

	receipt, err := w.writeOp(ctx, schema.OpRecordReception, in.BatchID, in.HerbType, in.Quantity, in.StorageLocation)
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, in.BatchID)
	return receipt, nil
}

// RecordDispatch records a distributor shipping part of a batch.
func (w *Writer) RecordDispatch(ctx context.Context, in DispatchInput) (*chain.Receipt, error) {
	if in.BatchID == "" {
		return nil, fmt.Errorf("%w: batchId is required", ErrInvalidInput)
	}
	if err := requireUint("quantity", in.Quantity); err != nil {
		return nil, err
	}

	receipt, err := w.writeOp(ctx, schema.OpRecordDispatch, in.BatchID, in.Quantity, in.Destination)
	if err != nil {
		return nil, err
	}

	w.invalidate(ctx, in.BatchID)
	return receipt, nil
}

// SyncProfile publishes the current actor's name and username under its role.
func (w *Writer) SyncProfile(ctx context.Context) (*chain.Receipt, error) {
	id := w.currentIdentity(ctx)
	if id.ActorID == "" {
		return nil, fmt.Errorf("%w: no current actor", ErrInvalidInput)
	}

	op, ok := profileOps[strings.ToLower(id.Role)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, id.Role)
	}

	return w.writeOp(ctx, op, id.DisplayName(), id.ActorID)
}

func (w *Writer) writeOp(ctx context.Context, op schema.Operation, args ...any) (*chain.Receipt, error) {
	method, _, err := w.negotiator.Method(op)
	if err != nil {
		return nil, err
	}
	return w.write(ctx, method, args...)
}

// write submits a transaction and waits for it to be mined. Writes are never retried.
func (w *Writer) write(ctx context.Context, method string, args ...any) (*chain.Receipt, error) {
	pending, err := w.chain.Submit(ctx, method, args...)
	if err != nil {
		writeCounter(method, "failed").Inc()
		return nil, &provenance.LedgerWriteError{Op: method, Err: err}
	}

	w.logg.Debug("transaction submitted", "method", method, "tx_hash", pending.Hash.Hex())

	receipt, err := w.chain.Await(ctx, pending)
	if err != nil {
		writeCounter(method, "failed").Inc()
		return nil, &provenance.LedgerWriteError{Op: method, TxHash: pending.Hash.Hex(), Err: err}
	}

	writeCounter(method, "confirmed").Inc()
	w.logg.Info("transaction confirmed",
		"method", method,
		"tx_hash", receipt.TxHash,
		"block_number", receipt.BlockNumber,
	)
	return receipt, nil
}

func writeCounter(method string, status string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`ayur_ledger_writes_total{method=%q,status=%q}`, method, status))
}

func (w *Writer) photoHash(batchID string, supplied string) common.Hash {
	if photoHashPattern.MatchString(supplied) {
		return common.HexToHash(supplied)
	}
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d", batchID, w.now().UnixMilli())))
}

func (w *Writer) currentIdentity(ctx context.Context) identity.Identity {
	if w.identity == nil {
		return identity.Identity{}
	}
	return w.identity.CurrentIdentity(ctx)
}

// actorOr returns supplied, else the current actor id, else "unknown".
func (w *Writer) actorOr(ctx context.Context, supplied string) string {
	if supplied != "" {
		return supplied
	}
	if id := w.currentIdentity(ctx).ActorID; id != "" {
		return id
	}
	return unknownActor
}

func (w *Writer) invalidate(ctx context.Context, batchID string) {
	if w.details == nil {
		return
	}
	if err := w.details.Invalidate(ctx, batchID); err != nil {
		w.logg.Warn("details cache invalidation failed", "batch_id", batchID, "error", err)
	}
}

func requireUint(name string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidInput, name)
	}
	return nil
}
