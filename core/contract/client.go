package contract

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"acp-node/core/models"
)

// Version selects the contract layout of the protocol deployment
type Version int

const (
	// V1 keeps jobs, memos and payments in a single ACP contract on the home chain
	V1 Version = 1
	// V2 splits them across manager contracts and supports cross-chain payable memos
	V2 Version = 2
)

// Addresses are the deployed contracts the client targets
type Addresses struct {
	ACP            common.Address
	JobManager     common.Address
	MemoManager    common.Address
	PaymentManager common.Address
}

// normalize routes every V1 call to the ACP contract and fills unset V2 managers
func (a Addresses) normalize(version Version) Addresses {
	if version == V1 {
		return Addresses{ACP: a.ACP, JobManager: a.ACP, MemoManager: a.ACP, PaymentManager: a.ACP}
	}
	if a.JobManager == (common.Address{}) {
		a.JobManager = a.ACP
	}
	if a.MemoManager == (common.Address{}) {
		a.MemoManager = a.ACP
	}
	if a.PaymentManager == (common.Address{}) {
		a.PaymentManager = a.ACP
	}
	return a
}

// Client builds calldata for every ledger call
type Client struct {
	version Version
	addrs   Addresses
}

// NewClient creates a contract client for the given deployment
func NewClient(version Version, addrs Addresses) (*Client, error) {
	if version != V1 && version != V2 {
		return nil, fmt.Errorf("unsupported contract version %d", version)
	}
	if addrs.ACP == (common.Address{}) {
		return nil, fmt.Errorf("acp contract address is required")
	}
	return &Client{version: version, addrs: addrs.normalize(version)}, nil
}

// Version returns the deployment version
func (c *Client) Version() Version {
	return c.version
}

// Addresses returns the normalized contract addresses
func (c *Client) Addresses() Addresses {
	return c.addrs
}

// SupportsCrossChain reports whether payable memos may settle on another chain
func (c *Client) SupportsCrossChain() bool {
	return c.version == V2
}

// PayableMemoParams are the arguments of a payable memo
type PayableMemoParams struct {
	JobID     uint64
	Content   string
	Token     common.Address
	Amount    *big.Int
	Recipient common.Address
	FeeAmount *big.Int
	FeeType   models.FeeType
	MemoType  models.MemoType
	NextPhase models.Phase
	ExpiredAt time.Time
}

// CreateJob opens a job with the provider and evaluator
func (c *Client) CreateJob(provider, evaluator common.Address, expiredAt time.Time, paymentToken common.Address, budget *big.Int, metadata string) (models.Operation, error) {
	return pack(c.addrs.JobManager, acpABI.Pack, "createJob",
		provider, evaluator, unix(expiredAt), paymentToken, orZero(budget), metadata)
}

// SetBudgetWithPaymentToken sets the escrowed budget of a job
func (c *Client) SetBudgetWithPaymentToken(jobID uint64, amount *big.Int, paymentToken common.Address) (models.Operation, error) {
	return pack(c.addrs.JobManager, acpABI.Pack, "setBudgetWithPaymentToken",
		u256(jobID), orZero(amount), paymentToken)
}

// CreateMemo appends a memo advancing the job to nextPhase when signed
func (c *Client) CreateMemo(jobID uint64, content string, memoType models.MemoType, isSecured bool, nextPhase models.Phase) (models.Operation, error) {
	return pack(c.addrs.MemoManager, acpABI.Pack, "createMemo",
		u256(jobID), content, uint8(memoType), isSecured, uint8(nextPhase))
}

// CreatePayableMemo appends a memo that moves funds when signed
func (c *Client) CreatePayableMemo(p PayableMemoParams) (models.Operation, error) {
	return pack(c.addrs.MemoManager, acpABI.Pack, "createPayableMemo",
		u256(p.JobID), p.Content, p.Token, orZero(p.Amount), p.Recipient, orZero(p.FeeAmount),
		uint8(p.FeeType), uint8(p.MemoType), uint8(p.NextPhase), unix(p.ExpiredAt))
}

// CreateCrossChainPayableMemo is CreatePayableMemo settling on destinationChainID
func (c *Client) CreateCrossChainPayableMemo(p PayableMemoParams, destinationChainID uint64) (models.Operation, error) {
	if !c.SupportsCrossChain() {
		return models.Operation{}, models.NewValidationError("createCrossChainPayableMemo",
			fmt.Sprintf("contract version %d does not support cross-chain memos", c.version))
	}
	return pack(c.addrs.MemoManager, acpABI.Pack, "createCrossChainPayableMemo",
		u256(p.JobID), p.Content, p.Token, orZero(p.Amount), p.Recipient, orZero(p.FeeAmount),
		uint8(p.FeeType), uint8(p.MemoType), uint8(p.NextPhase), unix(p.ExpiredAt), u256(destinationChainID))
}

// SignMemo approves or rejects a memo
func (c *Client) SignMemo(memoID uint64, approved bool, reason string) (models.Operation, error) {
	return pack(c.addrs.MemoManager, acpABI.Pack, "signMemo", u256(memoID), approved, reason)
}

// ApproveAllowance lets the payment manager pull amount of token
func (c *Client) ApproveAllowance(amount *big.Int, token common.Address) (models.Operation, error) {
	return c.ApproveAllowanceFor(amount, token, c.addrs.PaymentManager)
}

// ApproveAllowanceFor lets spender pull amount of token
func (c *Client) ApproveAllowanceFor(amount *big.Int, token, spender common.Address) (models.Operation, error) {
	return pack(token, erc20ABI.Pack, "approve", spender, orZero(amount))
}

// TransferAuthorization is a signed EIP-3009 transfer
type TransferAuthorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  *big.Int
	ValidBefore *big.Int
	Nonce       [32]byte
}

// TransferWithAuthorization settles a signed authorization on token
func (c *Client) TransferWithAuthorization(token common.Address, auth TransferAuthorization, signature []byte) (models.Operation, error) {
	return pack(token, erc20ABI.Pack, "transferWithAuthorization",
		auth.From, auth.To, orZero(auth.Value), orZero(auth.ValidAfter), orZero(auth.ValidBefore), auth.Nonce, signature)
}

// X402PaymentDetailsCall returns the target and calldata of the budget-payment status read
func (c *Client) X402PaymentDetailsCall(jobID uint64) (common.Address, []byte, error) {
	data, err := acpABI.Pack("x402PaymentDetails", u256(jobID))
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack x402PaymentDetails: %w", err)
	}
	return c.addrs.JobManager, data, nil
}

// DecodeX402PaymentDetails decodes the status read output
func DecodeX402PaymentDetails(output []byte) (models.X402PaymentDetails, error) {
	values, err := acpABI.Unpack("x402PaymentDetails", output)
	if err != nil {
		return models.X402PaymentDetails{}, fmt.Errorf("failed to decode x402PaymentDetails: %w", err)
	}
	if len(values) != 2 {
		return models.X402PaymentDetails{}, fmt.Errorf("x402PaymentDetails: expected 2 values, got %d", len(values))
	}
	isX402, ok1 := values[0].(bool)
	received, ok2 := values[1].(bool)
	if !ok1 || !ok2 {
		return models.X402PaymentDetails{}, fmt.Errorf("x402PaymentDetails: unexpected output types")
	}
	return models.X402PaymentDetails{IsX402: isX402, IsBudgetReceived: received}, nil
}

// AllowanceCall returns the calldata of an ERC-20 allowance read
func AllowanceCall(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

// DecodeAllowance decodes an ERC-20 allowance read
func DecodeAllowance(output []byte) (*big.Int, error) {
	values, err := erc20ABI.Unpack("allowance", output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode allowance: %w", err)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance: unexpected output type %T", values[0])
	}
	return v, nil
}

// DecimalsCall returns the calldata of an ERC-20 decimals read
func DecimalsCall() ([]byte, error) {
	return erc20ABI.Pack("decimals")
}

// DecodeDecimals decodes an ERC-20 decimals read
func DecodeDecimals(output []byte) (uint8, error) {
	values, err := erc20ABI.Unpack("decimals", output)
	if err != nil {
		return 0, fmt.Errorf("failed to decode decimals: %w", err)
	}
	v, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected output type %T", values[0])
	}
	return v, nil
}

func pack(target common.Address, packer func(string, ...interface{}) ([]byte, error), method string, args ...interface{}) (models.Operation, error) {
	data, err := packer(method, args...)
	if err != nil {
		return models.Operation{}, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	return models.Operation{Target: target, Data: data, Value: new(big.Int), Label: method}, nil
}

func u256(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func unix(t time.Time) *big.Int {
	if t.IsZero() {
		return new(big.Int)
	}
	return big.NewInt(t.Unix())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
