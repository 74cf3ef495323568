package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/grassrootseconomics/ethutils"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"
	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"golang.org/x/time/rate"
)

const (
	// defaultRPCClientTimeout is the default HTTP client timeout for RPC requests.
	defaultRPCClientTimeout = 10 * time.Second
	// defaultRateLimit is the default number of RPC requests per second.
	defaultRateLimit = 50
)

type (
	// EthRPCOpts contains configuration options for creating a new EthRPC client.
	EthRPCOpts struct {
		RPCEndpoint     string       // RPC endpoint URL (HTTP)
		ChainID         int64        // Chain ID for transaction signing
		ContractAddress string       // Supply chain contract address
		ABI             string       // Contract interface: "v2", "legacy" or a JSON file path
		PrivateKey      string       // Hex encoded signing key, empty for read-only access
		RateLimit       float64      // RPC requests per second, 0 for the default
		Logg            *slog.Logger // Structured logger
	}

	// EthRPC implements the Chain interface using Ethereum RPC calls.
	// Reads use the w3 library for batch requests; writes go through a bound contract.
	EthRPC struct {
		provider  *ethutils.Provider
		ethClient *ethclient.Client
		contract  abi.ABI
		address   common.Address
		bound     *bind.BoundContract
		txOpts    *bind.TransactOpts
		txMu      sync.Mutex
		limiter   *rate.Limiter
		logg      *slog.Logger
	}
)

// NewRPCFetcher creates a new Chain implementation using HTTP RPC.
// It configures a low-timeout HTTP client for fast failure detection.
func NewRPCFetcher(o EthRPCOpts) (*EthRPC, error) {
	if !common.IsHexAddress(o.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", o.ContractAddress)
	}

	contract, err := LoadABI(o.ABI)
	if err != nil {
		return nil, err
	}

	rpcClient, err := newRPCClient(o.RPCEndpoint)
	if err != nil {
		return nil, err
	}

	chainProvider := ethutils.NewProvider(
		o.RPCEndpoint,
		o.ChainID,
		ethutils.WithClient(w3.NewClient(rpcClient)),
	)

	limit := o.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	address := common.HexToAddress(o.ContractAddress)
	ethClient := ethclient.NewClient(rpcClient)

	c := &EthRPC{
		provider:  chainProvider,
		ethClient: ethClient,
		contract:  contract,
		address:   address,
		bound:     bind.NewBoundContract(address, contract, ethClient, ethClient, ethClient),
		limiter:   rate.NewLimiter(rate.Limit(limit), int(limit)),
		logg:      o.Logg,
	}

	if o.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(o.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}

		c.txOpts, err = bind.NewKeyedTransactorWithChainID(key, big.NewInt(o.ChainID))
		if err != nil {
			return nil, fmt.Errorf("failed to create transactor: %w", err)
		}
		o.Logg.Info("ledger writes enabled", "signer", c.txOpts.From.Hex())
	}

	o.Logg.Info("loaded contract interface",
		"address", address.Hex(),
		"abi", o.ABI,
		"methods", len(contract.Methods),
		"events", len(contract.Events),
	)

	return c, nil
}

// newRPCClient creates a new RPC client with a configured HTTP client.
func newRPCClient(rpcEndpoint string) (*rpc.Client, error) {
	httpClient := &http.Client{
		Timeout: defaultRPCClientTimeout,
	}

	return rpc.DialOptions(context.Background(), rpcEndpoint, rpc.WithHTTPClient(httpClient))
}

// GetLatestBlock returns the latest block number from the chain.
func (c *EthRPC) GetLatestBlock(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var latestBlock *big.Int
	latestBlockCall := eth.BlockNumber().Returns(&latestBlock)

	if err := c.provider.Client.CallCtx(ctx, latestBlockCall); err != nil {
		return 0, err
	}

	return latestBlock.Uint64(), nil
}

// GetBlockTimestamps fetches the headers of multiple blocks in a single batch RPC call.
// Individual header failures are tolerated and leave the block out of the result.
func (c *EthRPC) GetBlockTimestamps(ctx context.Context, blockNumbers []uint64) (map[uint64]uint64, error) {
	if len(blockNumbers) == 0 {
		return map[uint64]uint64{}, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	calls := make([]w3types.RPCCaller, len(blockNumbers))
	headers := make([]*types.Header, len(blockNumbers))

	for i, blockNum := range blockNumbers {
		calls[i] = eth.HeaderByNumber(new(big.Int).SetUint64(blockNum)).Returns(&headers[i])
	}

	var callErrs w3.CallErrors
	if err := c.provider.Client.CallCtx(ctx, calls...); err != nil {
		if !errors.As(err, &callErrs) {
			return nil, err
		}
	}

	timestamps := make(map[uint64]uint64, len(blockNumbers))
	for i, blockNum := range blockNumbers {
		if len(callErrs) > i && callErrs[i] != nil {
			c.logg.Debug("block header unavailable", "block", blockNum, "error", callErrs[i])
			continue
		}
		if headers[i] != nil {
			timestamps[blockNum] = headers[i].Time
		}
	}

	return timestamps, nil
}

// HasMethod reports whether the loaded contract interface exposes the method.
func (c *EthRPC) HasMethod(name string) bool {
	_, ok := c.contract.Methods[name]
	return ok
}

// HasEvent reports whether the loaded contract interface exposes the event.
func (c *EthRPC) HasEvent(name string) bool {
	_, ok := c.contract.Events[name]
	return ok
}

// Call packs the method arguments, performs an eth_call and unpacks the outputs.
func (c *EthRPC) Call(ctx context.Context, method string, args ...any) (schema.RawResult, error) {
	m, ok := c.contract.Methods[method]
	if !ok {
		return schema.RawResult{}, fmt.Errorf("unknown contract method %s", method)
	}

	input, err := c.contract.Pack(method, args...)
	if err != nil {
		return schema.RawResult{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return schema.RawResult{}, err
	}

	var output []byte
	msg := &w3types.Message{
		To:    &c.address,
		Input: input,
	}
	if err := c.provider.Client.CallCtx(ctx, eth.Call(msg, nil, nil).Returns(&output)); err != nil {
		return schema.RawResult{}, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := c.contract.Unpack(method, output)
	if err != nil {
		return schema.RawResult{}, fmt.Errorf("failed to unpack %s: %w", method, err)
	}

	return decodeOutputs(m, values), nil
}

// FilterEvents fetches the contract logs matching the query and decodes them.
// Logs of events unknown to the loaded interface are skipped.
func (c *EthRPC) FilterEvents(ctx context.Context, q EventQuery) ([]RawEvent, error) {
	filter := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(q.FromBlock),
		ToBlock:   new(big.Int).SetUint64(q.ToBlock),
		Addresses: []common.Address{c.address},
	}

	if q.Name != "" {
		event, ok := c.contract.Events[q.Name]
		if !ok {
			return nil, fmt.Errorf("unknown contract event %s", q.Name)
		}

		query := [][]any{{event.ID}}
		for _, v := range q.Indexed {
			if v == nil {
				query = append(query, []any{})
			} else {
				query = append(query, []any{v})
			}
		}

		topics, err := abi.MakeTopics(query...)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s topics: %w", q.Name, err)
		}
		filter.Topics = topics
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var logs []types.Log
	if err := c.provider.Client.CallCtx(ctx, eth.Logs(filter).Returns(&logs)); err != nil {
		return nil, fmt.Errorf("get logs %s: %w", q.Name, err)
	}

	events := make([]RawEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}

		event, ok, err := decodeLog(c.contract, log)
		if err != nil {
			c.logg.Warn("skipping undecodable log", "tx_hash", log.TxHash.Hex(), "index", log.Index, "error", err)
			continue
		}
		if ok {
			events = append(events, event)
		}
	}

	return events, nil
}

// Submit signs and sends a contract transaction. Submissions are serialized so
// consecutive transactions from the signer receive consecutive nonces.
func (c *EthRPC) Submit(ctx context.Context, method string, args ...any) (*PendingTx, error) {
	if c.txOpts == nil {
		return nil, ErrReadOnly
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	opts := *c.txOpts
	opts.Context = ctx

	tx, err := c.bound.Transact(&opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("transact %s: %w", method, err)
	}

	c.logg.Debug("submitted transaction", "method", method, "tx_hash", tx.Hash().Hex())
	return NewPendingTx(method, tx.Hash(), tx), nil
}

// Await waits until the transaction is mined and checks its status.
func (c *EthRPC) Await(ctx context.Context, p *PendingTx) (*Receipt, error) {
	tx, ok := p.Raw().(*types.Transaction)
	if !ok {
		return nil, fmt.Errorf("pending transaction %s has no signed payload", p.Hash.Hex())
	}

	receipt, err := bind.WaitMined(ctx, c.ethClient, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", p.Hash.Hex(), err)
	}

	r := &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Status:      receipt.Status,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return r, ErrTxReverted
	}

	return r, nil
}

// EthClient returns a go-ethereum client sharing the RPC connection.
func (c *EthRPC) EthClient() *ethclient.Client {
	return c.ethClient
}
