package chaintest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
)

// Batch describes a batch record as stored by the contract.
type Batch struct {
	ID             string
	CropType       string
	Quantity       int64
	HarvestDate    string
	FarmLocation   string
	PhotoHash      common.Hash
	Status         uint8
	Owner          common.Address
	Timestamp      int64
	FarmerName     string
	FarmerUsername string
}

// Legacy renders the batch the way the legacy getter returns it.
func (b Batch) Legacy() schema.RawResult {
	return schema.Positional(
		b.ID,
		b.CropType,
		big.NewInt(b.Quantity),
		b.HarvestDate,
		b.FarmLocation,
		[32]byte(b.PhotoHash),
		b.Status,
		b.Owner,
		big.NewInt(b.Timestamp),
	)
}

// V2 renders the batch the way the V2 getter returns it.
func (b Batch) V2() schema.RawResult {
	return schema.Named(map[string]any{
		"batchId":        b.ID,
		"cropType":       b.CropType,
		"quantity":       big.NewInt(b.Quantity),
		"harvestDate":    b.HarvestDate,
		"farmLocation":   b.FarmLocation,
		"photoHash":      [32]byte(b.PhotoHash),
		"status":         b.Status,
		"owner":          b.Owner,
		"timestamp":      big.NewInt(b.Timestamp),
		"farmerName":     b.FarmerName,
		"farmerUsername": b.FarmerUsername,
	})
}

// ScriptBatches answers both batch getters with the given records. Unknown ids
// get the contract's empty record.
func (f *Fake) ScriptBatches(batches ...Batch) {
	legacy := make(map[string]schema.RawResult, len(batches))
	v2 := make(map[string]schema.RawResult, len(batches))
	for _, b := range batches {
		legacy[b.ID] = b.Legacy()
		v2[b.ID] = b.V2()
	}
	f.OnCallKeyed("getBatchDetails", legacy, Batch{}.Legacy())
	f.OnCallKeyed("getBatchDetailsV2", v2, Batch{}.V2())
}

// Collection renders a collection record.
func Collection(batchID, farmerID, crop string, quantity int64, collectorID string, date int64) schema.RawResult {
	return schema.Positional(batchID, farmerID, crop, big.NewInt(quantity), collectorID, big.NewInt(date), uint8(1))
}

// Inspection renders an inspection record. A zero date means no inspection.
func Inspection(batchID, inspectorID, result, notes string, date int64) schema.RawResult {
	return schema.Positional(batchID, inspectorID, result, notes, big.NewInt(date))
}

// Product renders a product record.
func Product(productID, sourceBatchID, productType string, processed, wastage, processingDate, expiryDate int64, manufacturerID string) schema.RawResult {
	return schema.Positional(
		productID,
		sourceBatchID,
		productType,
		big.NewInt(processed),
		big.NewInt(wastage),
		big.NewInt(processingDate),
		big.NewInt(expiryDate),
		manufacturerID,
	)
}
