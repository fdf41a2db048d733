package agent

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"acp-node/core/job"
	"acp-node/core/memo"
	"acp-node/core/models"
)

// DeliverFunc produces the deliverable of a paid job
type DeliverFunc func(ctx context.Context, j *job.Job) (any, error)

// Policy decides how the node reacts to job events for its wallet
type Policy struct {
	Wallet         common.Address
	AcceptRequests bool
	AutoPay        bool
	AutoEvaluate   bool
	Deliver        DeliverFunc
	Logger         *slog.Logger
}

func (p *Policy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// OnNewTask acts on a job that changed, as provider or client
func (p *Policy) OnNewTask(ctx context.Context, j *job.Job, m *memo.Memo) error {
	logger := p.logger().With("job_id", j.ID, "phase", j.Phase.String())

	switch {
	case j.ProviderAddress == p.Wallet && j.Phase == models.PhaseRequest && m != nil && m.NextPhase == models.PhaseNegotiation:
		if !p.AcceptRequests {
			logger.Info("request left for manual review", "memo_id", m.ID)
			return nil
		}
		_, err := j.Respond(ctx, true, "")
		return err

	case j.ClientAddress == p.Wallet && m != nil && m.NextPhase == models.PhaseTransaction:
		if !p.AutoPay {
			logger.Info("requirement left for manual payment", "memo_id", m.ID)
			return nil
		}
		_, err := j.PayAndAcceptRequirement(ctx, "")
		return err

	case j.ProviderAddress == p.Wallet && j.Phase == models.PhaseTransaction && m != nil && m.NextPhase == models.PhaseEvaluation:
		if _, delivered := j.Deliverable(); delivered {
			logger.Debug("job already delivered", "memo_id", m.ID)
			return nil
		}
		if p.Deliver == nil {
			logger.Info("paid job awaiting delivery")
			return nil
		}
		deliverable, err := p.Deliver(ctx, j)
		if err != nil {
			return err
		}
		_, err = j.Deliver(ctx, deliverable)
		return err
	}

	logger.Debug("no action for event")
	return nil
}

// OnEvaluate approves deliverables when the node is the evaluator
func (p *Policy) OnEvaluate(ctx context.Context, j *job.Job) error {
	if j.EvaluatorAddress != p.Wallet || !p.AutoEvaluate {
		p.logger().Debug("evaluation left to evaluator", "job_id", j.ID)
		return nil
	}
	_, err := j.Evaluate(ctx, true, "Deliverable accepted.")
	return err
}
