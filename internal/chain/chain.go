// Package chain provides ledger access for the provenance engine.
// It abstracts the underlying RPC client and exposes contract reads, event log
// filtering, block timestamps and signed transaction submission.
package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
)

var (
	// ErrTxReverted is returned by Await when the transaction was mined with a failed status.
	ErrTxReverted = errors.New("transaction reverted")
	// ErrReadOnly is returned by Submit when no signing key is configured.
	ErrReadOnly = errors.New("ledger access is read-only")
)

type (
	// Chain defines the interface for ledger access.
	// Implementations must be safe for concurrent use.
	Chain interface {
		// GetLatestBlock returns the latest block number.
		GetLatestBlock(context.Context) (uint64, error)

		// GetBlockTimestamps resolves block timestamps in a single batch request.
		// Blocks that could not be fetched are absent from the result.
		GetBlockTimestamps(context.Context, []uint64) (map[uint64]uint64, error)

		// HasMethod reports whether the contract exposes the named method.
		HasMethod(string) bool

		// HasEvent reports whether the contract exposes the named event.
		HasEvent(string) bool

		// Call performs a read-only contract call and returns the decoded result.
		Call(ctx context.Context, method string, args ...any) (schema.RawResult, error)

		// FilterEvents returns the decoded contract logs matching the query.
		FilterEvents(context.Context, EventQuery) ([]RawEvent, error)

		// Submit signs and sends a state changing contract call.
		Submit(ctx context.Context, method string, args ...any) (*PendingTx, error)

		// Await blocks until the transaction is mined.
		Await(context.Context, *PendingTx) (*Receipt, error)
	}

	// EventQuery selects contract logs by event name, leading indexed arguments and block range.
	// An empty Name selects every event of the contract. A nil Indexed value is a wildcard.
	EventQuery struct {
		Name      string
		Indexed   []any
		FromBlock uint64
		ToBlock   uint64
	}

	// RawEvent is a decoded contract log. Indexed dynamic values (strings) decode to
	// the keccak256 hash of the original value.
	RawEvent struct {
		Name        string
		BlockNumber uint64
		TxHash      common.Hash
		LogIndex    uint
		Args        map[string]any
	}

	// PendingTx is a submitted, not yet confirmed transaction.
	PendingTx struct {
		Method string
		Hash   common.Hash
		raw    any
	}

	// Receipt is the confirmation of a mined transaction.
	Receipt struct {
		TxHash      string `json:"txHash"`
		BlockNumber uint64 `json:"blockNumber"`
		GasUsed     uint64 `json:"gasUsed"`
		Status      uint64 `json:"status"`
	}
)

// NewPendingTx creates a PendingTx carrying an implementation specific handle.
func NewPendingTx(method string, hash common.Hash, raw any) *PendingTx {
	return &PendingTx{
		Method: method,
		Hash:   hash,
		raw:    raw,
	}
}

// Raw returns the implementation specific handle of the transaction.
func (p *PendingTx) Raw() any {
	return p.raw
}
