package agent

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acp-node/core/job"
	"acp-node/core/models"
)

func TestPolicyAcceptsRequestsAsProvider(t *testing.T) {
	c, d := newTestClient(t, &fakeBackend{})
	j, err := c.JobFromWire(context.Background(), models.JobWire{
		ID: 9, ProviderAddress: wallet, Phase: models.PhaseRequest,
		Memos: []models.MemoWire{{ID: 3, NextPhase: models.PhaseNegotiation}},
	})
	require.NoError(t, err)

	p := &Policy{Wallet: wallet, AcceptRequests: true, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	require.NoError(t, p.OnNewTask(context.Background(), j, j.Memo(3)))

	require.Len(t, d.batches, 2)
	assert.Equal(t, "signMemo", d.batches[0][0].Label)
	assert.Equal(t, "createMemo", d.batches[1][0].Label)
}

func TestPolicyLeavesRequestsWhenDisabled(t *testing.T) {
	c, d := newTestClient(t, &fakeBackend{})
	j, err := c.JobFromWire(context.Background(), models.JobWire{
		ID: 9, ProviderAddress: wallet, Phase: models.PhaseRequest,
		Memos: []models.MemoWire{{ID: 3, NextPhase: models.PhaseNegotiation}},
	})
	require.NoError(t, err)

	p := &Policy{Wallet: wallet}
	require.NoError(t, p.OnNewTask(context.Background(), j, j.Memo(3)))
	assert.Empty(t, d.batches)
}

func deliverReport(context.Context, *job.Job) (any, error) {
	return map[string]string{"url": "https://example.com/report"}, nil
}

func TestPolicyDeliversPaidJobs(t *testing.T) {
	c, d := newTestClient(t, &fakeBackend{})
	j, err := c.JobFromWire(context.Background(), models.JobWire{
		ID: 9, ProviderAddress: wallet, Phase: models.PhaseTransaction,
		Memos: []models.MemoWire{
			{ID: 3, NextPhase: models.PhaseTransaction, Status: models.MemoStatusApproved},
			{ID: 4, NextPhase: models.PhaseEvaluation, Status: models.MemoStatusPending},
		},
	})
	require.NoError(t, err)

	p := &Policy{Wallet: wallet, Deliver: deliverReport}
	require.NoError(t, p.OnNewTask(context.Background(), j, j.Memo(4)))
	require.Len(t, d.batches, 1)
	assert.Equal(t, "createMemo", d.batches[0][0].Label)
}

func TestPolicyDeliversOnlyOnPaymentMemo(t *testing.T) {
	c, d := newTestClient(t, &fakeBackend{})
	j, err := c.JobFromWire(context.Background(), models.JobWire{
		ID: 9, ProviderAddress: wallet, Phase: models.PhaseTransaction,
		Memos: []models.MemoWire{{ID: 3, NextPhase: models.PhaseTransaction, Status: models.MemoStatusApproved}},
	})
	require.NoError(t, err)

	p := &Policy{Wallet: wallet, Deliver: deliverReport}
	require.NoError(t, p.OnNewTask(context.Background(), j, nil))
	require.NoError(t, p.OnNewTask(context.Background(), j, j.Memo(3)))
	assert.Empty(t, d.batches)
}

func TestPolicySkipsAlreadyDeliveredJobs(t *testing.T) {
	c, d := newTestClient(t, &fakeBackend{})
	j, err := c.JobFromWire(context.Background(), models.JobWire{
		ID: 9, ProviderAddress: wallet, Phase: models.PhaseTransaction,
		Memos: []models.MemoWire{
			{ID: 4, NextPhase: models.PhaseEvaluation, Status: models.MemoStatusPending},
			{ID: 5, Content: "report", NextPhase: models.PhaseCompleted, Status: models.MemoStatusPending},
		},
	})
	require.NoError(t, err)

	delivered := 0
	p := &Policy{Wallet: wallet, Deliver: func(ctx context.Context, j *job.Job) (any, error) {
		delivered++
		return deliverReport(ctx, j)
	}}
	require.NoError(t, p.OnNewTask(context.Background(), j, j.Memo(4)))
	assert.Zero(t, delivered)
	assert.Empty(t, d.batches)
}

func TestPolicyEvaluatesOnlyAsEvaluator(t *testing.T) {
	c, d := newTestClient(t, &fakeBackend{})
	memos := []models.MemoWire{{ID: 4, NextPhase: models.PhaseCompleted}}

	other, err := c.JobFromWire(context.Background(), models.JobWire{ID: 1, EvaluatorAddress: provider, Memos: memos})
	require.NoError(t, err)
	p := &Policy{Wallet: wallet, AutoEvaluate: true}
	require.NoError(t, p.OnEvaluate(context.Background(), other))
	assert.Empty(t, d.batches)

	mine, err := c.JobFromWire(context.Background(), models.JobWire{ID: 2, EvaluatorAddress: wallet, Memos: memos})
	require.NoError(t, err)
	require.NoError(t, p.OnEvaluate(context.Background(), mine))
	require.Len(t, d.batches, 1)
	assert.Equal(t, "signMemo", d.batches[0][0].Label)
}
