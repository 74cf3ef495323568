// Package provenance provides the canonical records served by the provenance engine:
// batch details, lifecycle events and the ordered chain of events for one batch.
package provenance

import (
	"bytes"
	"encoding/json"
	"math/big"
	"sort"
)

// Kind identifies a lifecycle event regardless of the contract schema generation that emitted it.
type Kind string

const (
	KindBatchCreated      Kind = "BatchCreated"
	KindCollectionAdded   Kind = "CollectionAdded"
	KindInspectionAdded   Kind = "InspectionAdded"
	KindProductCreated    Kind = "ProductCreated"
	KindProductReceived   Kind = "ProductReceived"
	KindProductDispatched Kind = "ProductDispatched"
)

const (
	// StatusUnknown is the label for status values outside the known table.
	StatusUnknown = "Unknown"
	// StatusCreated is the default status shown in batch listings.
	StatusCreated = "Created"
)

// statusLabels maps the contract's numeric batch status to a label.
var statusLabels = []string{"Pending", "InTransit", "Delivered", "Processing"}

// StatusLabel maps a numeric batch status to its label, or StatusUnknown.
func StatusLabel(status uint8) string {
	if int(status) < len(statusLabels) {
		return statusLabels[status]
	}
	return StatusUnknown
}

type (
	// BatchDetails is the canonical state of a batch, produced from either schema generation.
	BatchDetails struct {
		BatchID        string   `json:"batchId"`
		CropType       string   `json:"cropType"`
		Quantity       *big.Int `json:"quantity"`
		HarvestDate    string   `json:"harvestDate"`
		FarmLocation   string   `json:"farmLocation"`
		PhotoHash      string   `json:"photoHash"`
		Status         uint8    `json:"status"`
		Owner          string   `json:"owner"`
		CreatedAt      *big.Int `json:"createdAt"`
		FarmerName     string   `json:"farmerName"`
		FarmerUsername string   `json:"farmerUsername"`
	}

	// BatchSummary is the listing projection of a batch.
	BatchSummary struct {
		ID             string `json:"id"`
		CropType       string `json:"cropType"`
		Quantity       string `json:"quantity"`
		HarvestDate    string `json:"harvestDate"`
		FarmLocation   string `json:"farmLocation"`
		PhotoHash      string `json:"photoHash,omitempty"`
		Status         string `json:"status"`
		Timestamp      string `json:"timestamp"`
		FarmerName     string `json:"farmerName"`
		FarmerUsername string `json:"farmerUsername"`
		BlockNumber    uint64 `json:"blockNumber"`
	}

	// Collection is the collector's record of harvested crop taken from a farmer batch.
	Collection struct {
		FarmerBatchID  string   `json:"farmerBatchId"`
		FarmerID       string   `json:"farmerId"`
		CropName       string   `json:"cropName"`
		Quantity       *big.Int `json:"quantity"`
		CollectorID    string   `json:"collectorId"`
		CollectionDate *big.Int `json:"collectionDate"`
		Status         uint8    `json:"status"`
	}

	// Inspection is the quality audit result of a batch.
	// A zero or nil Date means no inspection was recorded.
	Inspection struct {
		BatchID     string   `json:"batchId"`
		InspectorID string   `json:"inspectorId"`
		Result      string   `json:"result"`
		Notes       string   `json:"notes"`
		Date        *big.Int `json:"date"`
	}

	// Product is a manufactured product and the batch it was processed from.
	Product struct {
		ProductID         string   `json:"productId"`
		SourceBatchID     string   `json:"sourceBatchId"`
		ProductType       string   `json:"productType"`
		QuantityProcessed *big.Int `json:"quantityProcessed"`
		Wastage           *big.Int `json:"wastage"`
		ProcessingDate    *big.Int `json:"processingDate"`
		ExpiryDate        *big.Int `json:"expiryDate"`
		ManufacturerID    string   `json:"manufacturerId"`
	}

	// Inventory is the distributor stock received for a batch.
	Inventory struct {
		BatchID         string   `json:"batchId"`
		HerbType        string   `json:"herbType"`
		Quantity        *big.Int `json:"quantity"`
		StorageLocation string   `json:"storageLocation"`
	}

	// Event is one lifecycle record in a provenance chain.
	// BlockNumber 0 means the event was derived from a state read rather than a log.
	Event struct {
		Kind        Kind           `json:"kind"`
		Name        string         `json:"name"`
		BlockNumber uint64         `json:"blockNumber"`
		TxHash      string         `json:"txHash,omitempty"`
		Payload     map[string]any `json:"payload"`
	}

	// Chain is the time-ordered provenance history of one batch.
	Chain struct {
		BatchID string  `json:"batchId"`
		Events  []Event `json:"events"`
		// ProductWindowClamped reports that product creation events were only
		// searched in the most recent blocks of the requested window.
		ProductWindowClamped bool `json:"productWindowClamped"`
	}
)

// Exists reports whether the record describes a created batch.
func (b *BatchDetails) Exists() bool {
	return b != nil && b.BatchID != ""
}

// StatusText returns the label of the batch status.
func (b *BatchDetails) StatusText() string {
	return StatusLabel(b.Status)
}

// Summary projects the details into a listing entry.
func (b *BatchDetails) Summary(blockNumber uint64) BatchSummary {
	s := BatchSummary{
		ID:             b.BatchID,
		CropType:       b.CropType,
		Quantity:       "0",
		HarvestDate:    b.HarvestDate,
		FarmLocation:   b.FarmLocation,
		PhotoHash:      b.PhotoHash,
		Status:         StatusCreated,
		Timestamp:      "0",
		FarmerName:     b.FarmerName,
		FarmerUsername: b.FarmerUsername,
		BlockNumber:    blockNumber,
	}
	if s.CropType == "" {
		s.CropType = "Unknown"
	}
	if b.Quantity != nil {
		s.Quantity = b.Quantity.String()
	}
	if b.CreatedAt != nil {
		s.Timestamp = b.CreatedAt.String()
	}
	return s
}

// HasTimestamp reports whether the payload already carries one of the date fields.
func (e Event) HasTimestamp() bool {
	for _, field := range []string{"timestamp", "collectionDate", "date", "processingDate"} {
		if _, ok := e.Payload[field]; ok {
			return true
		}
	}
	return false
}

// UnmarshalJSON restores integer payload values as *big.Int so cached chains
// decoded from an external store keep arbitrary precision.
func (e *Event) UnmarshalJSON(data []byte) error {
	type plain Event
	var raw struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Event(raw.plain)
	e.Payload = nil

	if len(raw.Payload) == 0 || string(raw.Payload) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw.Payload))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return err
	}
	for k, v := range payload {
		payload[k] = restoreNumber(v)
	}
	e.Payload = payload
	return nil
}

func restoreNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, ok := new(big.Int).SetString(t.String(), 10); ok {
			return n
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = restoreNumber(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = restoreNumber(t[k])
		}
		return t
	default:
		return v
	}
}

// SortByBlock orders events by ascending block number, keeping discovery order for ties.
func SortByBlock(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].BlockNumber < events[j].BlockNumber
	})
}
