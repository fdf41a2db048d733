package evm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"acp-node/core/dispatcher"
)

// EIP-5792 batch status codes
const (
	callsPending        = 100
	callsConfirmed      = 200
	callsOffchainFailed = 400
	callsReverted       = 500
	callsPartialRevert  = 600
)

// RPCCaller issues JSON-RPC calls; *rpc.Client satisfies it
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// DialRPC connects a raw JSON-RPC client
func DialRPC(ctx context.Context, url string) (*rpc.Client, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return client, nil
}

// WalletDriver submits atomic batches through an EIP-5792 wallet endpoint
type WalletDriver struct {
	chainID uint64
	from    common.Address
	wallet  RPCCaller
	node    RPCCaller
}

// NewWalletDriver creates a driver for chainID. node answers finality queries.
func NewWalletDriver(chainID uint64, from common.Address, wallet, node RPCCaller) *WalletDriver {
	return &WalletDriver{chainID: chainID, from: from, wallet: wallet, node: node}
}

// ChainID returns the chain the driver submits to
func (w *WalletDriver) ChainID() uint64 {
	return w.chainID
}

type rpcCall struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *hexutil.Big   `json:"value"`
}

type sendCallsParams struct {
	Version        string         `json:"version"`
	ChainID        hexutil.Uint64 `json:"chainId"`
	From           common.Address `json:"from"`
	AtomicRequired bool           `json:"atomicRequired"`
	Calls          []rpcCall      `json:"calls"`
	Capabilities   map[string]any `json:"capabilities,omitempty"`
}

type sendCallsResult struct {
	ID string `json:"id"`
}

// SendCalls submits the batch and returns its bundle id
func (w *WalletDriver) SendCalls(ctx context.Context, sub dispatcher.Submission) (common.Hash, error) {
	calls := make([]rpcCall, len(sub.Operations))
	for i, op := range sub.Operations {
		value := op.Value
		if value == nil {
			value = new(big.Int)
		}
		calls[i] = rpcCall{To: op.Target, Data: op.Data, Value: (*hexutil.Big)(value)}
	}
	params := sendCallsParams{
		Version:        "2.0.0",
		ChainID:        hexutil.Uint64(w.chainID),
		From:           w.from,
		AtomicRequired: true,
		Calls:          calls,
		Capabilities: map[string]any{
			"nonceKey":      hexutil.EncodeBig(sub.NonceKey),
			"gasMultiplier": strconv.FormatFloat(sub.GasMultiplier, 'f', -1, 64),
		},
	}
	var result sendCallsResult
	if err := w.wallet.CallContext(ctx, &result, "wallet_sendCalls", params); err != nil {
		return common.Hash{}, fmt.Errorf("wallet_sendCalls: %w", err)
	}
	if result.ID == "" {
		return common.Hash{}, fmt.Errorf("wallet_sendCalls returned no bundle id")
	}
	return common.HexToHash(result.ID), nil
}

type rpcLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

type rpcReceipt struct {
	Logs            []rpcLog       `json:"logs"`
	Status          hexutil.Uint64 `json:"status"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	TransactionHash common.Hash    `json:"transactionHash"`
}

type callsStatusResult struct {
	Status   int          `json:"status"`
	Receipts []rpcReceipt `json:"receipts"`
}

type blockHeader struct {
	Number hexutil.Uint64 `json:"number"`
}

// CallStatus reports the bundle state, upgrading confirmed bundles to final once the block is finalized
func (w *WalletDriver) CallStatus(ctx context.Context, operationHash common.Hash) (dispatcher.CallStatus, error) {
	var result callsStatusResult
	if err := w.wallet.CallContext(ctx, &result, "wallet_getCallsStatus", operationHash.Hex()); err != nil {
		return dispatcher.CallStatus{}, fmt.Errorf("wallet_getCallsStatus: %w", err)
	}

	switch result.Status {
	case callsPending:
		return dispatcher.CallStatus{State: dispatcher.StatePending}, nil
	case callsOffchainFailed, callsReverted, callsPartialRevert:
		return dispatcher.CallStatus{State: dispatcher.StateFailed, Reason: fmt.Sprintf("bundle status %d", result.Status)}, nil
	case callsConfirmed:
	default:
		return dispatcher.CallStatus{}, fmt.Errorf("unknown bundle status %d", result.Status)
	}

	status := dispatcher.CallStatus{State: dispatcher.StateIncluded}
	for _, receipt := range result.Receipts {
		if uint64(receipt.Status) != types.ReceiptStatusSuccessful {
			return dispatcher.CallStatus{State: dispatcher.StateFailed, TxHash: receipt.TransactionHash, Reason: "receipt reverted"}, nil
		}
		status.TxHash = receipt.TransactionHash
		if uint64(receipt.BlockNumber) > status.BlockNumber {
			status.BlockNumber = uint64(receipt.BlockNumber)
		}
		for _, lg := range receipt.Logs {
			status.Logs = append(status.Logs, types.Log{
				Address:     lg.Address,
				Topics:      lg.Topics,
				Data:        lg.Data,
				BlockNumber: uint64(receipt.BlockNumber),
				TxHash:      receipt.TransactionHash,
			})
		}
	}

	if w.node != nil {
		var finalized blockHeader
		if err := w.node.CallContext(ctx, &finalized, "eth_getBlockByNumber", "finalized", false); err != nil {
			return dispatcher.CallStatus{}, fmt.Errorf("failed to read finalized block: %w", err)
		}
		if uint64(finalized.Number) >= status.BlockNumber {
			status.State = dispatcher.StateFinalized
		}
	}
	return status, nil
}
