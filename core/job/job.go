package job

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"acp-node/core/contract"
	"acp-node/core/dispatcher"
	"acp-node/core/fare"
	"acp-node/core/memo"
	"acp-node/core/models"
)

// DefaultPayableExpiry is how long a payable memo stays signable when no expiry is given
const DefaultPayableExpiry = 5 * time.Minute

// Dispatcher submits job operations
type Dispatcher interface {
	HandleOperation(ctx context.Context, ops []models.Operation, opts ...dispatcher.CallOption) (*models.BatchResult, error)
}

// FareResolver resolves assets referenced by a job
type FareResolver interface {
	BaseFare() fare.Fare
	HomeChainID() uint64
	FromContractAddress(ctx context.Context, token common.Address, chainID uint64) (fare.Fare, error)
}

// AllowanceReader reads ERC-20 allowances on any configured chain
type AllowanceReader interface {
	Allowance(ctx context.Context, chainID uint64, token, owner, spender common.Address) (*big.Int, error)
}

// BudgetPayer settles a job budget through the payment-required exchange
type BudgetPayer interface {
	Pay(ctx context.Context, jobID uint64, budget fare.Amount) error
}

// Deps are the collaborators a job uses to act
type Deps struct {
	Contracts  *contract.Client
	Dispatcher Dispatcher
	Fares      FareResolver
	Allowances AllowanceReader
	Budget     BudgetPayer
	// Wallet is the address the node signs and pays from
	Wallet common.Address
	// ForeignPaymentManagers maps a foreign chain id to the spender approved there
	ForeignPaymentManagers map[uint64]common.Address
	Logger                 *slog.Logger
	Now                    func() time.Time
}

// Job is a commerce transaction between a client and a provider
type Job struct {
	ID                uint64
	ClientAddress     common.Address
	ProviderAddress   common.Address
	EvaluatorAddress  common.Address
	ContractAddress   common.Address
	Price             float64
	PriceTokenAddress common.Address
	PriceType         models.PriceType
	PriceValue        float64
	Name              string
	Requirement       json.RawMessage
	Phase             models.Phase
	Memos             []*memo.Memo
	Context           map[string]any
	X402              models.X402PaymentDetails

	deps   Deps
	logger *slog.Logger
}

// New rehydrates a job from its wire snapshot
func New(w models.JobWire, x402 models.X402PaymentDetails, deps Deps) *Job {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	j := &Job{
		ID:                w.ID,
		ClientAddress:     w.ClientAddress,
		ProviderAddress:   w.ProviderAddress,
		EvaluatorAddress:  w.EvaluatorAddress,
		ContractAddress:   w.ContractAddress,
		Price:             w.Price,
		PriceTokenAddress: w.PriceTokenAddress,
		PriceType:         models.PriceTypeFixed,
		Phase:             w.Phase,
		Context:           w.Context,
		X402:              x402,
		deps:              deps,
		logger:            deps.Logger.With("job_id", w.ID),
	}
	j.Memos = make([]*memo.Memo, 0, len(w.Memos))
	for _, mw := range w.Memos {
		j.Memos = append(j.Memos, memo.New(mw, deps.Contracts, deps.Dispatcher))
	}
	j.parseRequest()
	return j
}

// parseRequest reads the service terms from the first negotiation memo.
// Each key is read on its own so one malformed value keeps only its default.
func (j *Job) parseRequest() {
	request := FirstWithNextPhase(j.Memos, models.PhaseNegotiation)
	if request == nil || request.StructuredContent == nil {
		return
	}
	c := request.StructuredContent
	if name, ok := stringField(c, "name", "serviceName"); ok {
		j.Name = name
	}
	for _, key := range []string{"requirement", "serviceRequirement"} {
		if raw, ok := c[key]; ok && present(raw) {
			j.Requirement = raw
			break
		}
	}
	if priceType, ok := stringField(c, "priceType"); ok {
		switch models.PriceType(priceType) {
		case models.PriceTypeFixed, models.PriceTypePercentage:
			j.PriceType = models.PriceType(priceType)
		}
	}
	if raw, ok := c["priceValue"]; ok {
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			j.PriceValue = v
		}
	}
}

func stringField(c map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, key := range keys {
		raw, ok := c[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
	}
	return "", false
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// RequirementText returns the requirement as a string when it was sent as one
func (j *Job) RequirementText() (string, bool) {
	var s string
	if err := json.Unmarshal(j.Requirement, &s); err != nil {
		return "", false
	}
	return s, true
}

// LatestMemo returns the most recent memo, nil for a job without memos
func (j *Job) LatestMemo() *memo.Memo {
	return LatestMemo(j.Memos)
}

// Memo returns the memo with id
func (j *Job) Memo(id uint64) *memo.Memo {
	for _, m := range j.Memos {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// RequirementMemo returns the memo that moves the job into TRANSACTION
func (j *Job) RequirementMemo() *memo.Memo {
	return FirstWithNextPhase(j.Memos, models.PhaseTransaction)
}

// Deliverable returns the content of the delivery memo
func (j *Job) Deliverable() (string, bool) {
	m := FirstWithNextPhase(j.Memos, models.PhaseCompleted)
	if m == nil {
		return "", false
	}
	return m.Content, true
}

// ClientAgent returns the client address
func (j *Job) ClientAgent() common.Address {
	return j.ClientAddress
}

// ProviderAgent returns the provider address
func (j *Job) ProviderAgent() common.Address {
	return j.ProviderAddress
}

// IsTerminal reports whether no operation can move the job further
func (j *Job) IsTerminal() bool {
	return j.Phase.IsTerminal()
}

// Consistent reports whether the phase agrees with the approved memos
func (j *Job) Consistent() bool {
	if j.Phase == models.PhaseExpired {
		return true
	}
	return DerivePhase(j.Memos) == j.Phase
}

func (j *Job) homeChainID() uint64 {
	if j.deps.Fares == nil {
		return 0
	}
	return j.deps.Fares.HomeChainID()
}

func (j *Job) expiryOrDefault(expiredAt time.Time) time.Time {
	if expiredAt.IsZero() {
		return j.deps.Now().Add(DefaultPayableExpiry)
	}
	return expiredAt
}

// priceAmount is the job price in its price token, truncated to six fractional digits
func (j *Job) priceAmount(ctx context.Context) (*fare.FareAmount, error) {
	f := j.deps.Fares.BaseFare()
	if j.PriceTokenAddress != (common.Address{}) {
		resolved, err := j.deps.Fares.FromContractAddress(ctx, j.PriceTokenAddress, 0)
		if err != nil {
			return nil, err
		}
		f = resolved
	}
	return fare.NewFareAmount(j.Price, f), nil
}
