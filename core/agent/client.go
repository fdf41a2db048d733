package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"acp-node/core/contract"
	"acp-node/core/fare"
	"acp-node/core/job"
	"acp-node/core/memo"
	"acp-node/core/models"
)

// DefaultJobExpiry is how long a new job stays open when no expiry is given
const DefaultJobExpiry = 24 * time.Hour

// Backend serves job and memo snapshots
type Backend interface {
	GetJob(ctx context.Context, jobID uint64) (*models.JobWire, error)
	GetMemo(ctx context.Context, jobID, memoID uint64) (*models.MemoWire, error)
}

// BudgetStatusReader reads the on-chain budget-payment flags of a job
type BudgetStatusReader interface {
	X402PaymentDetails(ctx context.Context, jobID uint64) (models.X402PaymentDetails, error)
}

// ResultDispatcher is a job dispatcher that can also recover created job ids
type ResultDispatcher interface {
	job.Dispatcher
	JobIDFromResult(result *models.BatchResult, client, provider common.Address) (uint64, error)
}

// Client is the node's entry point to jobs
type Client struct {
	contracts  *contract.Client
	dispatcher ResultDispatcher
	fares      *fare.Resolver
	backend    Backend
	status     BudgetStatusReader
	jobDeps    job.Deps
	logger     *slog.Logger
}

// Options are the optional collaborators of a client
type Options struct {
	Allowances             job.AllowanceReader
	Budget                 job.BudgetPayer
	ForeignPaymentManagers map[uint64]common.Address
	Logger                 *slog.Logger
	Now                    func() time.Time
}

// NewClient creates a client acting for wallet
func NewClient(contracts *contract.Client, d ResultDispatcher, fares *fare.Resolver, backend Backend, status BudgetStatusReader, wallet common.Address, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		contracts:  contracts,
		dispatcher: d,
		fares:      fares,
		backend:    backend,
		status:     status,
		logger:     opts.Logger,
		jobDeps: job.Deps{
			Contracts:              contracts,
			Dispatcher:             d,
			Fares:                  fares,
			Allowances:             opts.Allowances,
			Budget:                 opts.Budget,
			Wallet:                 wallet,
			ForeignPaymentManagers: opts.ForeignPaymentManagers,
			Logger:                 opts.Logger,
			Now:                    opts.Now,
		},
	}
}

// Wallet returns the address the client acts for
func (c *Client) Wallet() common.Address {
	return c.jobDeps.Wallet
}

// JobFromWire rehydrates a job snapshot, reading its budget-payment flags on-chain
func (c *Client) JobFromWire(ctx context.Context, w models.JobWire) (*job.Job, error) {
	var details models.X402PaymentDetails
	if c.status != nil {
		d, err := c.status.X402PaymentDetails(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read payment details of job %d: %w", w.ID, err)
		}
		details = d
	}
	j := job.New(w, details, c.jobDeps)
	if !j.Consistent() {
		c.logger.Warn("job phase disagrees with approved memos",
			"job_id", j.ID, "phase", j.Phase.String(), "derived", job.DerivePhase(j.Memos).String())
	}
	return j, nil
}

// GetJob fetches a fresh snapshot of jobID
func (c *Client) GetJob(ctx context.Context, jobID uint64) (*job.Job, error) {
	w, err := c.backend.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job %d: %w", jobID, err)
	}
	return c.JobFromWire(ctx, *w)
}

// GetMemo fetches a memo of jobID
func (c *Client) GetMemo(ctx context.Context, jobID, memoID uint64) (*memo.Memo, error) {
	w, err := c.backend.GetMemo(ctx, jobID, memoID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch memo %d of job %d: %w", memoID, jobID, err)
	}
	return memo.New(*w, c.contracts, c.dispatcher), nil
}

// InitiateParams describe a new job request
type InitiateParams struct {
	Provider    common.Address
	Evaluator   common.Address
	ServiceName string
	Requirement any
	Budget      fare.Amount
	PriceType   models.PriceType
	PriceValue  float64
	ExpiredAt   time.Time
	Metadata    string
}

type requestMemo struct {
	Name        string           `json:"name,omitempty"`
	Requirement any              `json:"requirement,omitempty"`
	PriceType   models.PriceType `json:"priceType,omitempty"`
	PriceValue  float64          `json:"priceValue"`
}

// InitiateJob creates a job with the provider, funds its budget and posts the request memo
func (c *Client) InitiateJob(ctx context.Context, p InitiateParams) (uint64, error) {
	if p.Provider == (common.Address{}) {
		return 0, models.NewValidationError("initiateJob", "provider address is required")
	}
	evaluator := p.Evaluator
	if evaluator == (common.Address{}) {
		evaluator = c.Wallet()
	}
	expiredAt := p.ExpiredAt
	if expiredAt.IsZero() {
		expiredAt = c.jobDeps.Now().Add(DefaultJobExpiry)
	}
	budget := p.Budget
	if budget == nil {
		budget = fare.NewFareAmount(0, c.fares.BaseFare())
	}
	token := budget.Fare().ContractAddress

	createOp, err := c.contracts.CreateJob(p.Provider, evaluator, expiredAt, token, budget.Units(), p.Metadata)
	if err != nil {
		return 0, err
	}
	result, err := c.dispatcher.HandleOperation(ctx, []models.Operation{createOp})
	if err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}
	jobID, err := c.dispatcher.JobIDFromResult(result, c.Wallet(), p.Provider)
	if err != nil {
		return 0, fmt.Errorf("failed to recover job id: %w", err)
	}
	logger := c.logger.With("job_id", jobID)
	logger.Info("job created", "provider", p.Provider.Hex(), "tx_hash", result.TxHash.Hex())

	content, err := json.Marshal(requestMemo{
		Name:        p.ServiceName,
		Requirement: p.Requirement,
		PriceType:   p.PriceType,
		PriceValue:  p.PriceValue,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	budgetOp, err := c.contracts.SetBudgetWithPaymentToken(jobID, budget.Units(), token)
	if err != nil {
		return 0, err
	}
	memoOp, err := c.contracts.CreateMemo(jobID, string(content), models.MemoTypeMessage, true, models.PhaseNegotiation)
	if err != nil {
		return 0, err
	}
	if _, err := c.dispatcher.HandleOperation(ctx, []models.Operation{budgetOp, memoOp}); err != nil {
		return jobID, fmt.Errorf("failed to post request of job %d: %w", jobID, err)
	}
	logger.Info("job request posted")
	return jobID, nil
}
