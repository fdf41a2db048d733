package x402

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"

	"acp-node/core/contract"
	"acp-node/core/dispatcher"
	"acp-node/core/fare"
	"acp-node/core/models"
)

var errBudgetPending = errors.New("budget not yet received")

// PollConfig bounds the budget-received polling. One poll cycle is a wait
// followed by a recheck, and MaxRetries counts cycles after the initial check.
type PollConfig struct {
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultPollConfig is an initial check plus ten cycles waiting 2s, 4s, 8s, 16s
// then 30s six times: eleven checks in all
func DefaultPollConfig() PollConfig {
	return PollConfig{
		InitialInterval: 2 * time.Second,
		Multiplier:      2,
		MaxInterval:     30 * time.Second,
		MaxRetries:      10,
	}
}

// NonceRegistrar records an authorization nonce off-chain before it is used
type NonceRegistrar interface {
	RegisterX402Nonce(ctx context.Context, jobID uint64, nonce string) error
}

// BudgetReader reads the on-chain budget-payment flags of a job
type BudgetReader interface {
	X402PaymentDetails(ctx context.Context, jobID uint64) (models.X402PaymentDetails, error)
}

// Dispatcher submits the on-chain settlement fallback
type Dispatcher interface {
	HandleOperation(ctx context.Context, ops []models.Operation, opts ...dispatcher.CallOption) (*models.BatchResult, error)
}

// BudgetRequester is the facilitator side of the exchange
type BudgetRequester interface {
	RequestBudget(ctx context.Context, budget, payment string) (*BudgetResponse, error)
}

// PollRecorder observes budget polls
type PollRecorder interface {
	X402Poll(received bool)
}

// Controller runs the budget-payment exchange for a job
type Controller struct {
	facilitator BudgetRequester
	signer      Signer
	registrar   NonceRegistrar
	reader      BudgetReader
	dispatcher  Dispatcher
	contracts   *contract.Client
	chainID     uint64
	poll        PollConfig
	timer       backoff.Timer
	recorder    PollRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// ControllerOption customizes a controller
type ControllerOption func(*Controller)

// WithPollConfig overrides the budget polling schedule
func WithPollConfig(cfg PollConfig) ControllerOption {
	return func(c *Controller) {
		c.poll = cfg
	}
}

// WithTimer replaces the polling timer
func WithTimer(t backoff.Timer) ControllerOption {
	return func(c *Controller) {
		c.timer = t
	}
}

// WithPollRecorder reports every budget poll to r
func WithPollRecorder(r PollRecorder) ControllerOption {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithClock replaces the clock used for authorization validity
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a budget-payment controller for chainID
func NewController(facilitator BudgetRequester, signer Signer, registrar NonceRegistrar, reader BudgetReader,
	d Dispatcher, contracts *contract.Client, chainID uint64, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		facilitator: facilitator,
		signer:      signer,
		registrar:   registrar,
		reader:      reader,
		dispatcher:  d,
		contracts:   contracts,
		chainID:     chainID,
		poll:        DefaultPollConfig(),
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pay settles budget for jobID and waits until the ledger reports it received
func (c *Controller) Pay(ctx context.Context, jobID uint64, budget fare.Amount) error {
	logger := c.logger.With("job_id", jobID)
	budgetValue := budget.Fare().Format(budget.Units())

	resp, err := c.facilitator.RequestBudget(ctx, budgetValue, "")
	if err != nil {
		return err
	}
	if resp.Required != nil {
		if err := c.settle(ctx, jobID, budgetValue, resp.Required, logger); err != nil {
			return err
		}
	}
	return c.waitForBudget(ctx, jobID, logger)
}

func (c *Controller) settle(ctx context.Context, jobID uint64, budget string, required *PaymentRequired, logger *slog.Logger) error {
	if len(required.Accepts) == 0 {
		return &models.ProtocolError{Source: "x402", Status: 402, Body: "no accepted payment requirements"}
	}
	req := required.Accepts[0]

	payment, err := GeneratePayment(req, c.signer, c.chainID, c.now())
	if err != nil {
		return err
	}
	if err := c.registrar.RegisterX402Nonce(ctx, jobID, payment.NonceHex()); err != nil {
		return fmt.Errorf("failed to register payment nonce: %w", err)
	}

	resp, err := c.facilitator.RequestBudget(ctx, budget, payment.Encoded)
	if err != nil {
		return err
	}
	if resp.Paid {
		logger.Info("budget accepted by facilitator")
		return nil
	}

	logger.Info("facilitator still requires payment, settling on-chain")
	op, err := c.contracts.TransferWithAuthorization(common.HexToAddress(req.Asset), payment.Authorization, payment.Signature)
	if err != nil {
		return err
	}
	if _, err := c.dispatcher.HandleOperation(ctx, []models.Operation{op}); err != nil {
		return fmt.Errorf("failed to submit transfer authorization: %w", err)
	}
	return nil
}

func (c *Controller) waitForBudget(ctx context.Context, jobID uint64, logger *slog.Logger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.poll.InitialInterval
	b.Multiplier = c.poll.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = c.poll.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.poll.MaxRetries), ctx)

	polls := 0
	check := func() error {
		polls++
		details, err := c.reader.X402PaymentDetails(ctx, jobID)
		if err != nil {
			return fmt.Errorf("failed to read budget status: %w", err)
		}
		if c.recorder != nil {
			c.recorder.X402Poll(details.IsBudgetReceived)
		}
		if !details.IsBudgetReceived {
			return errBudgetPending
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("budget not received yet", "poll", polls, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotifyWithTimer(check, policy, notify, c.timer); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("budget of job %d not received after %d checks: %w", jobID, polls, models.ErrTimeout)
	}
	logger.Info("budget received", "polls", polls)
	return nil
}
