package schema

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

// Positional layout of the batch details getters. V2 appends the farmer fields.
const (
	batchIDIdx = iota
	cropTypeIdx
	quantityIdx
	harvestDateIdx
	farmLocationIdx
	photoHashIdx
	statusIdx
	ownerIdx
	timestampIdx
	farmerNameIdx
	farmerUsernameIdx
)

// BatchDetails normalizes a batch details read. Legacy results leave the farmer fields empty.
func BatchDetails(r RawResult) provenance.BatchDetails {
	return provenance.BatchDetails{
		BatchID:        r.Text("batchId", batchIDIdx),
		CropType:       r.Text("cropType", cropTypeIdx),
		Quantity:       r.Uint("quantity", quantityIdx),
		HarvestDate:    r.Text("harvestDate", harvestDateIdx),
		FarmLocation:   r.Text("farmLocation", farmLocationIdx),
		PhotoHash:      r.Hash32("photoHash", photoHashIdx),
		Status:         r.Uint8("status", statusIdx),
		Owner:          r.Text("owner", ownerIdx),
		CreatedAt:      r.Uint("timestamp", timestampIdx),
		FarmerName:     r.Text("farmerName", farmerNameIdx),
		FarmerUsername: r.Text("farmerUsername", farmerUsernameIdx),
	}
}

// Collection normalizes a collection state read.
func Collection(r RawResult) provenance.Collection {
	return provenance.Collection{
		FarmerBatchID:  r.Text("farmerBatchId", 0),
		FarmerID:       r.Text("farmerId", 1),
		CropName:       r.Text("cropName", 2),
		Quantity:       r.Uint("quantity", 3),
		CollectorID:    r.Text("collectorId", 4),
		CollectionDate: r.Uint("collectionDate", 5),
		Status:         r.Uint8("status", 6),
	}
}

// Inspection normalizes an inspection state read.
func Inspection(r RawResult) provenance.Inspection {
	return provenance.Inspection{
		BatchID:     r.Text("batchId", 0),
		InspectorID: r.Text("inspectorId", 1),
		Result:      r.Text("result", 2),
		Notes:       r.Text("notes", 3),
		Date:        r.Uint("date", 4),
	}
}

// Product normalizes a product state read.
func Product(r RawResult) provenance.Product {
	return provenance.Product{
		ProductID:         r.Text("productId", 0),
		SourceBatchID:     r.Text("sourceBatchId", 1),
		ProductType:       r.Text("productType", 2),
		QuantityProcessed: r.Uint("quantityProcessed", 3),
		Wastage:           r.Uint("wastage", 4),
		ProcessingDate:    r.Uint("processingDate", 5),
		ExpiryDate:        r.Uint("expiryDate", 6),
		ManufacturerID:    r.Text("manufacturerId", 7),
	}
}

// Inventory normalizes a distributor inventory read.
func Inventory(r RawResult) provenance.Inventory {
	return provenance.Inventory{
		BatchID:         r.Text("batchId", 0),
		HerbType:        r.Text("herbType", 1),
		Quantity:        r.Uint("quantity", 2),
		StorageLocation: r.Text("storageLocation", 3),
	}
}

// Strings normalizes a string-list read such as a batch id index lookup.
// The list is either the single positional value or the "ids" field.
func Strings(r RawResult) []string {
	v, ok := r.Field("ids", 0)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := toText(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Address normalizes a single address read, defaulting to the zero address.
func Address(r RawResult) common.Address {
	v, ok := r.Field("account", 0)
	if !ok {
		return common.Address{}
	}
	switch t := v.(type) {
	case common.Address:
		return t
	case string:
		if common.IsHexAddress(t) {
			return common.HexToAddress(t)
		}
	}
	return common.Address{}
}

// BatchPayload renders batch details as a creation event payload.
func BatchPayload(d provenance.BatchDetails) map[string]any {
	return map[string]any{
		"batchId":        d.BatchID,
		"cropType":       d.CropType,
		"quantity":       d.Quantity,
		"harvestDate":    d.HarvestDate,
		"farmLocation":   d.FarmLocation,
		"photoHash":      d.PhotoHash,
		"status":         d.Status,
		"owner":          d.Owner,
		"timestamp":      d.CreatedAt,
		"farmerName":     d.FarmerName,
		"farmerUsername": d.FarmerUsername,
		"statusText":     d.StatusText(),
	}
}

// CollectionPayload renders a collection record as an event payload.
func CollectionPayload(c provenance.Collection) map[string]any {
	return map[string]any{
		"farmerBatchId":  c.FarmerBatchID,
		"farmerId":       c.FarmerID,
		"cropName":       c.CropName,
		"quantity":       c.Quantity,
		"collectorId":    c.CollectorID,
		"collectionDate": c.CollectionDate,
		"status":         c.Status,
	}
}

// InspectionPayload renders an inspection record as an event payload.
func InspectionPayload(i provenance.Inspection) map[string]any {
	return map[string]any{
		"batchId":     i.BatchID,
		"inspectorId": i.InspectorID,
		"result":      i.Result,
		"notes":       i.Notes,
		"date":        i.Date,
	}
}

// ProductPayload renders a product record as an event payload.
func ProductPayload(p provenance.Product) map[string]any {
	return map[string]any{
		"productId":         p.ProductID,
		"sourceBatchId":     p.SourceBatchID,
		"productType":       p.ProductType,
		"quantityProcessed": p.QuantityProcessed,
		"wastage":           p.Wastage,
		"processingDate":    p.ProcessingDate,
		"expiryDate":        p.ExpiryDate,
		"manufacturerId":    p.ManufacturerID,
	}
}
