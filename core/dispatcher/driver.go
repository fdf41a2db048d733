package dispatcher

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"acp-node/core/models"
)

// CallState is the lifecycle state of a submitted batch
type CallState int

const (
	StatePending CallState = iota
	StateIncluded
	StateFinalized
	StateFailed
)

func (s CallState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateIncluded:
		return "included"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CallStatus is what the driver reports for a submitted batch
type CallStatus struct {
	State       CallState
	TxHash      common.Hash
	BlockNumber uint64
	Logs        []types.Log
	Reason      string
}

// Submission is one atomic batch handed to a driver
type Submission struct {
	Operations    []models.Operation
	NonceKey      *big.Int
	GasMultiplier float64
}

// Driver submits batches to one chain and reports their status
type Driver interface {
	ChainID() uint64
	SendCalls(ctx context.Context, sub Submission) (common.Hash, error)
	CallStatus(ctx context.Context, operationHash common.Hash) (CallStatus, error)
}

// Recorder receives dispatch telemetry
type Recorder interface {
	DispatchAttempt(chainID uint64, label string)
	DispatchFailed(chainID uint64)
	ConfirmationObserved(chainID uint64, seconds float64)
}

type noopRecorder struct{}

func (noopRecorder) DispatchAttempt(uint64, string)       {}
func (noopRecorder) DispatchFailed(uint64)                {}
func (noopRecorder) ConfirmationObserved(uint64, float64) {}
