package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"acp-node/core/contract"
	"acp-node/core/models"
)

var errPending = errors.New("batch not yet confirmed")

// Config controls submission retries and confirmation polling
type Config struct {
	MaxRetries      int
	RetryDelay      time.Duration
	PollInterval    time.Duration
	PollMultiplier  float64
	PollMaxInterval time.Duration
	PollAttempts    int
	// Optimistic accepts inclusion without finality on the home chain
	Optimistic bool
}

// DefaultConfig returns the settings used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		RetryDelay:      time.Second,
		PollInterval:    time.Second,
		PollMultiplier:  1.5,
		PollMaxInterval: 15 * time.Second,
		PollAttempts:    20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxRetries < 1 {
		c.MaxRetries = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.PollMultiplier < 1 {
		c.PollMultiplier = def.PollMultiplier
	}
	if c.PollMaxInterval <= 0 {
		c.PollMaxInterval = def.PollMaxInterval
	}
	if c.PollAttempts < 1 {
		c.PollAttempts = def.PollAttempts
	}
	return c
}

type lane struct {
	mu     sync.Mutex
	driver Driver
}

// Dispatcher submits operation batches, one lane per chain
type Dispatcher struct {
	cfg         Config
	contracts   *contract.Client
	homeChainID uint64
	logger      *slog.Logger
	recorder    Recorder
	timer       backoff.Timer

	mu    sync.RWMutex
	lanes map[uint64]*lane
}

// Option customizes a dispatcher
type Option func(*Dispatcher)

// WithRecorder reports attempts and confirmations to r
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithTimer replaces the confirmation polling timer
func WithTimer(t backoff.Timer) Option {
	return func(d *Dispatcher) {
		d.timer = t
	}
}

// New creates a dispatcher whose home lane is driven by home
func New(cfg Config, contracts *contract.Client, home Driver, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		cfg:         cfg.withDefaults(),
		contracts:   contracts,
		homeChainID: home.ChainID(),
		logger:      logger,
		recorder:    noopRecorder{},
		lanes:       map[uint64]*lane{home.ChainID(): {driver: home}},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AddChain registers a lane for a foreign chain
func (d *Dispatcher) AddChain(driver Driver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lanes[driver.ChainID()] = &lane{driver: driver}
}

// HomeChainID returns the chain the job manager lives on
func (d *Dispatcher) HomeChainID() uint64 {
	return d.homeChainID
}

// Contracts returns the contract facade used to decode results
func (d *Dispatcher) Contracts() *contract.Client {
	return d.contracts
}

// CallOption customizes one HandleOperation call
type CallOption func(*Target)

// Target is the lane and confirmation mode a call resolves to
type Target struct {
	ChainID         uint64
	RequireFinality bool
}

// ResolveTarget applies opts on top of the home chain defaults
func ResolveTarget(homeChainID uint64, opts ...CallOption) Target {
	t := Target{ChainID: homeChainID}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// OnChain targets the lane of chainID instead of the home chain
func OnChain(chainID uint64) CallOption {
	return func(t *Target) {
		if chainID != 0 {
			t.ChainID = chainID
		}
	}
}

// RequireFinality waits for finality even when optimistic confirmation is enabled
func RequireFinality() CallOption {
	return func(t *Target) {
		t.RequireFinality = true
	}
}

// HandleOperation submits ops as one atomic batch and waits for confirmation
func (d *Dispatcher) HandleOperation(ctx context.Context, ops []models.Operation, opts ...CallOption) (*models.BatchResult, error) {
	call := ResolveTarget(d.homeChainID, opts...)
	if len(ops) == 0 {
		return nil, models.NewValidationError("dispatch", "no operations to submit")
	}

	d.mu.RLock()
	ln, ok := d.lanes[call.ChainID]
	d.mu.RUnlock()
	if !ok {
		return nil, models.NewValidationError("dispatch", fmt.Sprintf("no driver registered for chain %d", call.ChainID))
	}

	ln.mu.Lock()
	defer ln.mu.Unlock()

	acceptIncluded := d.cfg.Optimistic && call.ChainID == d.homeChainID && !call.RequireFinality
	nonceKey := newNonceKey()
	labels := operationLabels(ops)

	attempts := 0
	result, err := retry.DoWithData(
		func() (*models.BatchResult, error) {
			multiplier := GasMultiplier(attempts)
			attempts++
			for _, label := range labels {
				d.recorder.DispatchAttempt(call.ChainID, label)
			}
			d.logger.Debug("submitting batch",
				"chain_id", call.ChainID, "attempt", attempts, "gas_multiplier", multiplier, "operations", labels)
			return d.submit(ctx, ln.driver, Submission{Operations: ops, NonceKey: nonceKey, GasMultiplier: multiplier}, acceptIncluded)
		},
		retry.Attempts(uint(d.cfg.MaxRetries)),
		retry.Delay(d.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn("batch attempt failed", "chain_id", call.ChainID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		d.recorder.DispatchFailed(call.ChainID)
		return nil, &DispatchError{ChainID: call.ChainID, Attempts: attempts, Err: err}
	}
	d.logger.Info("batch confirmed",
		"chain_id", call.ChainID, "op_hash", result.OperationHash.Hex(), "tx_hash", result.TxHash.Hex(), "attempts", attempts)
	return result, nil
}

func (d *Dispatcher) submit(ctx context.Context, driver Driver, sub Submission, acceptIncluded bool) (*models.BatchResult, error) {
	started := time.Now()
	opHash, err := driver.SendCalls(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to send calls: %w", err)
	}
	status, err := d.waitForConfirmation(ctx, driver, opHash, acceptIncluded)
	if err != nil {
		return nil, err
	}
	d.recorder.ConfirmationObserved(driver.ChainID(), time.Since(started).Seconds())
	return &models.BatchResult{
		OperationHash: opHash,
		TxHash:        status.TxHash,
		BlockNumber:   status.BlockNumber,
		ChainID:       driver.ChainID(),
		Logs:          status.Logs,
	}, nil
}

func (d *Dispatcher) waitForConfirmation(ctx context.Context, driver Driver, opHash common.Hash, acceptIncluded bool) (CallStatus, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.PollInterval
	b.Multiplier = d.cfg.PollMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = d.cfg.PollMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.cfg.PollAttempts-1)), ctx)

	var status CallStatus
	check := func() error {
		s, err := driver.CallStatus(ctx, opHash)
		if err != nil {
			return fmt.Errorf("failed to read call status: %w", err)
		}
		switch s.State {
		case StateFinalized:
			status = s
			return nil
		case StateIncluded:
			if acceptIncluded {
				status = s
				return nil
			}
			return errPending
		case StateFailed:
			return backoff.Permanent(&RevertError{OperationHash: opHash.Hex(), Reason: s.Reason})
		default:
			return errPending
		}
	}

	err := backoff.RetryNotifyWithTimer(check, policy, nil, d.timer)
	if err == nil {
		return status, nil
	}
	var revert *RevertError
	if errors.As(err, &revert) {
		return CallStatus{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return CallStatus{}, ctxErr
	}
	return CallStatus{}, fmt.Errorf("batch %s not confirmed after %d polls: %w", opHash.Hex(), d.cfg.PollAttempts, models.ErrTimeout)
}

// JobIDFromResult recovers the id of the job the batch created for client and provider
func (d *Dispatcher) JobIDFromResult(result *models.BatchResult, client, provider common.Address) (uint64, error) {
	if result == nil {
		return 0, fmt.Errorf("nil batch result")
	}
	return d.contracts.JobIDFromLogs(result.Logs, client, provider)
}

// MemoIDsFromResult returns the memos the batch created
func (d *Dispatcher) MemoIDsFromResult(result *models.BatchResult) []contract.MemoCreatedEvent {
	if result == nil {
		return nil
	}
	return d.contracts.MemoIDsFromLogs(result.Logs)
}

// GasMultiplier is the fee multiplier of the zero-based attempt
func GasMultiplier(attempt int) float64 {
	if attempt < 0 {
		attempt = 0
	}
	return float64(10+attempt) / 10
}

// newNonceKey draws a 192-bit key so concurrent batches from one signer never share a nonce lane
func newNonceKey() *big.Int {
	a, b := uuid.New(), uuid.New()
	buf := make([]byte, 0, 24)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:8]...)
	return new(big.Int).SetBytes(buf)
}

func operationLabels(ops []models.Operation) []string {
	labels := make([]string, len(ops))
	for i, op := range ops {
		labels[i] = op.Label
		if labels[i] == "" {
			labels[i] = "call"
		}
	}
	return labels
}
