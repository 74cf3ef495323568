// Package event provides the envelope relayed for every lifecycle event the
// ledger watcher observes.
package event

import (
	"encoding/json"

	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

// Event is a contract log observed by the watcher.
type Event struct {
	Block           uint64          `json:"block"`           // Block number
	ContractAddress string          `json:"contractAddress"` // Contract that emitted the log
	Timestamp       uint64          `json:"timestamp"`       // Block timestamp, 0 when unknown
	TxHash          string          `json:"transactionHash"` // Transaction hash
	TxType          string          `json:"transactionType"` // Contract event name, e.g. BatchCreatedV2
	Kind            provenance.Kind `json:"kind"`            // Lifecycle kind independent of schema generation
	Payload         map[string]any  `json:"payload"`         // Decoded event arguments
	Index           uint            `json:"-"`               // Log index within the block
}

// Serialize converts the event to JSON bytes.
func (e Event) Serialize() ([]byte, error) {
	return json.Marshal(e)
}

// Deserialize parses JSON bytes into an Event.
func Deserialize(jsonData []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(jsonData, &event); err != nil {
		return event, err
	}
	return event, nil
}
