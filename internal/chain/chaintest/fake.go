// Package chaintest provides an in-memory ledger for exercising components that
// depend on chain.Chain without a node.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/chain"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
)

// ErrNotScripted is returned for calls without a scripted result.
var ErrNotScripted = errors.New("call not scripted")

type (
	// CallFunc produces the result of a scripted contract call.
	CallFunc func(args ...any) (schema.RawResult, error)

	// Event is a log held by the fake ledger. Key is the value of the first
	// indexed argument, matched against EventQuery.Indexed[0].
	Event struct {
		Name        string
		Key         string
		BlockNumber uint64
		Args        map[string]any
	}

	// Submission records one transaction sent through Submit.
	Submission struct {
		Method string
		Args   []any
	}

	// Fake is a scriptable chain.Chain.
	Fake struct {
		mu sync.Mutex

		methods map[string]bool
		events  map[string]bool

		latest     uint64
		latestErr  error
		timestamps map[uint64]uint64
		tsErr      error

		calls     map[string]CallFunc
		callErrs  map[string]error
		log       []Event
		filterErr map[string]error

		submitErr error
		awaitErr  error
		nextBlock uint64

		callCount   map[string]int
		filterCount map[string]int
		tsRequested [][]uint64
		submitted   []Submission
	}
)

var _ chain.Chain = (*Fake)(nil)

// New creates a fake exposing the methods and events of the given contract interface.
func New(abiSource string) *Fake {
	contract, err := chain.LoadABI(abiSource)
	if err != nil {
		panic(fmt.Sprintf("chaintest: %v", err))
	}
	return FromABI(contract)
}

// NewV2 creates a fake exposing both contract generations.
func NewV2() *Fake {
	return New(chain.ABIV2)
}

// NewLegacy creates a fake exposing only the legacy contract generation.
func NewLegacy() *Fake {
	return New(chain.ABILegacy)
}

// FromABI creates a fake exposing the methods and events of contract.
func FromABI(contract abi.ABI) *Fake {
	f := &Fake{
		methods:     make(map[string]bool),
		events:      make(map[string]bool),
		timestamps:  make(map[uint64]uint64),
		calls:       make(map[string]CallFunc),
		callErrs:    make(map[string]error),
		filterErr:   make(map[string]error),
		callCount:   make(map[string]int),
		filterCount: make(map[string]int),
		nextBlock:   1000,
	}
	for name := range contract.Methods {
		f.methods[name] = true
	}
	for name := range contract.Events {
		f.events[name] = true
	}
	return f
}

// Drop removes methods or events from the exposed capabilities.
func (f *Fake) Drop(names ...string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range names {
		delete(f.methods, n)
		delete(f.events, n)
	}
	return f
}

// SetLatest sets the latest block height.
func (f *Fake) SetLatest(block uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = block
}

// FailLatest makes GetLatestBlock fail.
func (f *Fake) FailLatest(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestErr = err
}

// SetTimestamp sets the timestamp of a block.
func (f *Fake) SetTimestamp(block, ts uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timestamps[block] = ts
}

// FailTimestamps makes GetBlockTimestamps fail.
func (f *Fake) FailTimestamps(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tsErr = err
}

// OnCall scripts a contract call.
func (f *Fake) OnCall(method string, fn CallFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method] = fn
}

// OnCallKeyed scripts a single-argument contract call with one result per key.
// Unknown keys return the zero result of the given shape.
func (f *Fake) OnCallKeyed(method string, results map[string]schema.RawResult, empty schema.RawResult) {
	f.OnCall(method, func(args ...any) (schema.RawResult, error) {
		if len(args) == 0 {
			return empty, nil
		}
		key := fmt.Sprint(args[0])
		if r, ok := results[key]; ok {
			return r, nil
		}
		return empty, nil
	})
}

// FailCall makes a contract call fail.
func (f *Fake) FailCall(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callErrs[method] = err
}

// Emit appends events to the fake log.
func (f *Fake) Emit(events ...Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, events...)
}

// FailFilter makes event queries for name fail. An empty name fails every query.
func (f *Fake) FailFilter(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterErr[name] = err
}

// FailSubmit makes Submit fail.
func (f *Fake) FailSubmit(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

// FailAwait makes Await fail.
func (f *Fake) FailAwait(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaitErr = err
}

// Calls returns how many times method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount[method]
}

// Filters returns how many event queries were made for name.
func (f *Fake) Filters(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filterCount[name]
}

// TimestampRequests returns the block lists passed to GetBlockTimestamps.
func (f *Fake) TimestampRequests() [][]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]uint64(nil), f.tsRequested...)
}

// Submitted returns the transactions sent through Submit.
func (f *Fake) Submitted() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submitted...)
}

func (f *Fake) GetLatestBlock(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return 0, f.latestErr
	}
	return f.latest, nil
}

func (f *Fake) GetBlockTimestamps(_ context.Context, blocks []uint64) (map[uint64]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tsRequested = append(f.tsRequested, append([]uint64(nil), blocks...))
	if f.tsErr != nil {
		return nil, f.tsErr
	}

	out := make(map[uint64]uint64, len(blocks))
	for _, b := range blocks {
		if ts, ok := f.timestamps[b]; ok {
			out[b] = ts
		}
	}
	return out, nil
}

func (f *Fake) HasMethod(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.methods[name]
}

func (f *Fake) HasEvent(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[name]
}

func (f *Fake) Call(_ context.Context, method string, args ...any) (schema.RawResult, error) {
	f.mu.Lock()
	f.callCount[method]++
	exposed := f.methods[method]
	err := f.callErrs[method]
	fn := f.calls[method]
	f.mu.Unlock()

	if !exposed {
		return schema.RawResult{}, fmt.Errorf("unknown contract method %s", method)
	}
	if err != nil {
		return schema.RawResult{}, err
	}
	if fn == nil {
		return schema.RawResult{}, fmt.Errorf("%s: %w", method, ErrNotScripted)
	}
	return fn(args...)
}

func (f *Fake) FilterEvents(_ context.Context, q chain.EventQuery) ([]chain.RawEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCount[q.Name]++

	if err := f.filterErr[q.Name]; err != nil {
		return nil, err
	}
	if err := f.filterErr[""]; err != nil {
		return nil, err
	}
	if q.Name != "" && !f.events[q.Name] {
		return nil, fmt.Errorf("unknown contract event %s", q.Name)
	}

	var out []chain.RawEvent
	for i, e := range f.log {
		if q.Name != "" && e.Name != q.Name {
			continue
		}
		if e.BlockNumber < q.FromBlock || e.BlockNumber > q.ToBlock {
			continue
		}
		if len(q.Indexed) > 0 && q.Indexed[0] != nil && fmt.Sprint(q.Indexed[0]) != e.Key {
			continue
		}

		args := make(map[string]any, len(e.Args)+1)
		for k, v := range e.Args {
			args[k] = v
		}
		out = append(out, chain.RawEvent{
			Name:        e.Name,
			BlockNumber: e.BlockNumber,
			TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%d", e.Name, i))),
			LogIndex:    uint(i),
			Args:        args,
		})
	}
	return out, nil
}

func (f *Fake) Submit(_ context.Context, method string, args ...any) (*chain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if !f.methods[method] {
		return nil, fmt.Errorf("unknown contract method %s", method)
	}

	f.submitted = append(f.submitted, Submission{Method: method, Args: args})
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("tx:%s:%d", method, len(f.submitted))))
	return chain.NewPendingTx(method, hash, nil), nil
}

func (f *Fake) Await(_ context.Context, p *chain.PendingTx) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.awaitErr != nil {
		return nil, f.awaitErr
	}

	f.nextBlock++
	return &chain.Receipt{
		TxHash:      p.Hash.Hex(),
		BlockNumber: f.nextBlock,
		GasUsed:     21000,
		Status:      1,
	}, nil
}

// KeyHash returns the topic value of an indexed string argument.
func KeyHash(key string) common.Hash {
	return crypto.Keccak256Hash([]byte(key))
}
