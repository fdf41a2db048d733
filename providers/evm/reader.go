package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"acp-node/core/contract"
	"acp-node/core/models"
)

// ContractCaller executes read-only calls; *ethclient.Client satisfies it
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader performs chain reads on the home chain and any foreign chain
type Reader struct {
	homeChainID uint64
	contracts   *contract.Client

	mu      sync.RWMutex
	callers map[uint64]ContractCaller
}

// Dial connects to an RPC endpoint
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return client, nil
}

// NewReader creates a reader whose home chain is served by home
func NewReader(homeChainID uint64, home ContractCaller, contracts *contract.Client) *Reader {
	return &Reader{
		homeChainID: homeChainID,
		contracts:   contracts,
		callers:     map[uint64]ContractCaller{homeChainID: home},
	}
}

// AddChain registers a caller for a foreign chain
func (r *Reader) AddChain(chainID uint64, caller ContractCaller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callers[chainID] = caller
}

func (r *Reader) caller(chainID uint64) (ContractCaller, error) {
	if chainID == 0 {
		chainID = r.homeChainID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.callers[chainID]
	if !ok {
		return nil, fmt.Errorf("no rpc configured for chain %d", chainID)
	}
	return c, nil
}

func (r *Reader) call(ctx context.Context, chainID uint64, to common.Address, data []byte) ([]byte, error) {
	c, err := r.caller(chainID)
	if err != nil {
		return nil, err
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call to %s on chain %d failed: %w", to.Hex(), chainID, err)
	}
	return out, nil
}

// Decimals reads the decimals of token
func (r *Reader) Decimals(ctx context.Context, chainID uint64, token common.Address) (uint8, error) {
	data, err := contract.DecimalsCall()
	if err != nil {
		return 0, err
	}
	out, err := r.call(ctx, chainID, token, data)
	if err != nil {
		return 0, err
	}
	return contract.DecodeDecimals(out)
}

// Allowance reads how much of token spender may pull from owner
func (r *Reader) Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error) {
	data, err := contract.AllowanceCall(owner, spender)
	if err != nil {
		return nil, err
	}
	out, err := r.call(ctx, chainID, token, data)
	if err != nil {
		return nil, err
	}
	return contract.DecodeAllowance(out)
}

// X402PaymentDetails reads the budget-payment flags of jobID
func (r *Reader) X402PaymentDetails(ctx context.Context, jobID uint64) (models.X402PaymentDetails, error) {
	to, data, err := r.contracts.X402PaymentDetailsCall(jobID)
	if err != nil {
		return models.X402PaymentDetails{}, err
	}
	out, err := r.call(ctx, r.homeChainID, to, data)
	if err != nil {
		return models.X402PaymentDetails{}, err
	}
	return contract.DecodeX402PaymentDetails(out)
}
