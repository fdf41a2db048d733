package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Operation is a single contract call inside a dispatched batch
type Operation struct {
	Target common.Address
	Data   []byte
	Value  *big.Int
	// Label names the ledger call for logs and metrics
	Label string
}

// BatchResult is returned once a batch has been confirmed
type BatchResult struct {
	OperationHash common.Hash
	TxHash        common.Hash
	BlockNumber   uint64
	ChainID       uint64
	Logs          []types.Log
}
