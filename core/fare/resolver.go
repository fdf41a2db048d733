package fare

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsReader reads the ERC-20 decimals of a token on a chain
type DecimalsReader interface {
	Decimals(ctx context.Context, chainID uint64, token common.Address) (uint8, error)
}

type fareKey struct {
	chainID uint64
	token   common.Address
}

// Resolver turns token addresses into fares, caching chain reads
type Resolver struct {
	base        Fare
	homeChainID uint64
	reader      DecimalsReader
	cache       map[fareKey]Fare
	mu          sync.RWMutex
}

// NewResolver creates a resolver around the configured base fare
func NewResolver(base Fare, homeChainID uint64, reader DecimalsReader) *Resolver {
	return &Resolver{
		base:        base,
		homeChainID: homeChainID,
		reader:      reader,
		cache:       make(map[fareKey]Fare),
	}
}

// BaseFare returns the canonical base fare
func (r *Resolver) BaseFare() Fare {
	return r.base
}

// HomeChainID returns the chain jobs live on
func (r *Resolver) HomeChainID() uint64 {
	return r.homeChainID
}

// FromContractAddress resolves a fare for token on chainID (0 means home).
// The base asset on the home chain is returned without a chain read.
func (r *Resolver) FromContractAddress(ctx context.Context, token common.Address, chainID uint64) (Fare, error) {
	if chainID == 0 {
		chainID = r.homeChainID
	}
	foreign := chainID != r.homeChainID
	if !foreign && token == r.base.ContractAddress {
		return r.base, nil
	}

	key := fareKey{chainID: chainID, token: token}
	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if r.reader == nil {
		return Fare{}, fmt.Errorf("no chain reader to resolve %s", token.Hex())
	}
	decimals, err := r.reader.Decimals(ctx, chainID, token)
	if err != nil {
		return Fare{}, fmt.Errorf("failed to read decimals of %s on chain %d: %w", token.Hex(), chainID, err)
	}

	f := NewFare(token, decimals)
	if foreign {
		f = f.WithChain(chainID)
	}

	r.mu.Lock()
	r.cache[key] = f
	r.mu.Unlock()
	return f, nil
}

// AmountFromUnits resolves token and wraps units as a FareAmountBase
func (r *Resolver) AmountFromUnits(ctx context.Context, units *big.Int, token common.Address, chainID uint64) (*FareAmountBase, error) {
	f, err := r.FromContractAddress(ctx, token, chainID)
	if err != nil {
		return nil, err
	}
	return NewFareAmountBase(units, f), nil
}
