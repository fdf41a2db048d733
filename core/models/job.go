package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Phase represents the lifecycle phase of a job
type Phase uint8

const (
	PhaseRequest Phase = iota
	PhaseNegotiation
	PhaseTransaction
	PhaseEvaluation
	PhaseCompleted
	PhaseRejected
	PhaseExpired
)

var phaseNames = map[Phase]string{
	PhaseRequest:     "REQUEST",
	PhaseNegotiation: "NEGOTIATION",
	PhaseTransaction: "TRANSACTION",
	PhaseEvaluation:  "EVALUATION",
	PhaseCompleted:   "COMPLETED",
	PhaseRejected:    "REJECTED",
	PhaseExpired:     "EXPIRED",
}

// String returns the protocol name of the phase
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE(%d)", uint8(p))
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// IsTerminal reports whether no transition leaves p
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseRejected || p == PhaseExpired
}

// UnmarshalJSON accepts the numeric wire value or the phase name
func (p *Phase) UnmarshalJSON(data []byte) error {
	var n uint8
	if err := json.Unmarshal(data, &n); err == nil {
		if !Phase(n).Valid() {
			return fmt.Errorf("unknown phase %d", n)
		}
		*p = Phase(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid phase %s", string(data))
	}
	for phase, name := range phaseNames {
		if strings.EqualFold(name, s) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", s)
}

// transitions lists the phases reachable from each non-terminal phase
var transitions = map[Phase][]Phase{
	PhaseRequest:     {PhaseNegotiation, PhaseRejected, PhaseExpired},
	PhaseNegotiation: {PhaseTransaction, PhaseRejected, PhaseExpired},
	PhaseTransaction: {PhaseEvaluation, PhaseRejected, PhaseExpired},
	PhaseEvaluation:  {PhaseCompleted, PhaseRejected},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PriceType describes how the job price is interpreted when computing fees
type PriceType string

const (
	PriceTypeFixed      PriceType = "fixed"
	PriceTypePercentage PriceType = "percentage"
)

// FeeType is the fee mode passed with payable memos
type FeeType uint8

const (
	FeeTypeNone FeeType = iota
	FeeTypeImmediate
	FeeTypeDeferred
	FeeTypePercentage
)

// JobWire is the job snapshot shape delivered by the backend and push events
type JobWire struct {
	ID                uint64          `json:"id"`
	ClientAddress     common.Address  `json:"clientAddress"`
	ProviderAddress   common.Address  `json:"providerAddress"`
	EvaluatorAddress  common.Address  `json:"evaluatorAddress"`
	Price             float64         `json:"price"`
	PriceTokenAddress common.Address  `json:"priceTokenAddress"`
	Memos             []MemoWire      `json:"memos"`
	Phase             Phase           `json:"phase"`
	Context           map[string]any  `json:"context,omitempty"`
	ContractAddress   common.Address  `json:"contractAddress"`
	Deliverable       json.RawMessage `json:"deliverable,omitempty"`
}

// X402PaymentDetails mirrors the on-chain budget-payment flags of a job
type X402PaymentDetails struct {
	IsX402           bool
	IsBudgetReceived bool
}
