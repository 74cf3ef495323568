// Package schema reconciles the legacy and V2 generations of the supply chain contract.
// It picks the available form of an operation or event at call time and normalizes
// positional or named read results into canonical records.
package schema

import (
	"fmt"

	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

type (
	// Capabilities reports which operations and events the deployed contract exposes.
	Capabilities interface {
		HasMethod(string) bool
		HasEvent(string) bool
	}

	// Operation names one logical operation (or event) in both schema generations.
	// An empty name means the generation does not offer it.
	Operation struct {
		V2     string
		Legacy string
	}

	// Negotiator selects between schema generations against a set of capabilities.
	Negotiator struct {
		caps Capabilities
	}
)

// Contract methods.
var (
	OpBatchDetails        = Operation{V2: "getBatchDetailsV2", Legacy: "getBatchDetails"}
	OpCreateBatch         = Operation{V2: "createBatchV2", Legacy: "createBatch"}
	OpBatchIDsByUsername  = Operation{V2: "getBatchIdsByFarmerUsername"}
	OpBatchIDsByName      = Operation{V2: "getBatchIdsByFarmerName"}
	OpAccountByUsername   = Operation{Legacy: "getAccountByUsername"}
	OpFarmerBatchIDs      = Operation{Legacy: "getFarmerBatchIds"}
	OpGetCollection       = Operation{Legacy: "getCollection"}
	OpGetInspection       = Operation{Legacy: "getInspection"}
	OpGetProduct          = Operation{Legacy: "products"}
	OpGetInventory        = Operation{Legacy: "inventory"}
	OpAddCollection       = Operation{Legacy: "addCollection"}
	OpAddInspection       = Operation{Legacy: "addInspection"}
	OpCreateProduct       = Operation{Legacy: "createProduct"}
	OpRecordReception     = Operation{Legacy: "recordReception"}
	OpRecordDispatch      = Operation{Legacy: "recordDispatch"}
	OpSetFarmerProfile    = Operation{Legacy: "setFarmerProfile"}
	OpSetCollectorProfile = Operation{Legacy: "setCollectorProfile"}
	OpSetAuditorProfile   = Operation{Legacy: "setAuditorProfile"}
	OpSetManufacturerProf = Operation{Legacy: "setManufacturerProfile"}
	OpSetDistributorProf  = Operation{Legacy: "setDistributorProfile"}
)

// Contract events, keyed by lifecycle kind.
var Events = map[provenance.Kind]Operation{
	provenance.KindBatchCreated:      {V2: "BatchCreatedV2", Legacy: "BatchCreated"},
	provenance.KindCollectionAdded:   {Legacy: "CollectionAdded"},
	provenance.KindInspectionAdded:   {Legacy: "InspectionAdded"},
	provenance.KindProductCreated:    {Legacy: "ProductCreated"},
	provenance.KindProductReceived:   {Legacy: "ProductReceived"},
	provenance.KindProductDispatched: {Legacy: "ProductDispatched"},
}

// NewNegotiator creates a Negotiator over the given capabilities.
func NewNegotiator(caps Capabilities) *Negotiator {
	return &Negotiator{caps: caps}
}

// Method returns the preferred contract method for op and whether it is the V2 form.
func (n *Negotiator) Method(op Operation) (string, bool, error) {
	return pick(op, n.caps.HasMethod)
}

// Event returns the preferred contract event for op and whether it is the V2 form.
func (n *Negotiator) Event(op Operation) (string, bool, error) {
	return pick(op, n.caps.HasEvent)
}

// EventFor returns the preferred contract event for a lifecycle kind.
func (n *Negotiator) EventFor(kind provenance.Kind) (string, bool, error) {
	op, ok := Events[kind]
	if !ok {
		return "", false, fmt.Errorf("event kind %s: %w", kind, provenance.ErrCapabilityUnavailable)
	}
	return n.Event(op)
}

// Supports reports whether either generation of op is available as a method.
func (n *Negotiator) Supports(op Operation) bool {
	_, _, err := n.Method(op)
	return err == nil
}

// KindOf maps a contract event name from either generation to its lifecycle kind.
func KindOf(eventName string) (provenance.Kind, bool) {
	for kind, op := range Events {
		if eventName != "" && (eventName == op.V2 || eventName == op.Legacy) {
			return kind, true
		}
	}
	return "", false
}

func pick(op Operation, has func(string) bool) (string, bool, error) {
	if op.V2 != "" && has(op.V2) {
		return op.V2, true, nil
	}
	if op.Legacy != "" && has(op.Legacy) {
		return op.Legacy, false, nil
	}
	return "", false, fmt.Errorf("%s/%s: %w", op.V2, op.Legacy, provenance.ErrCapabilityUnavailable)
}
