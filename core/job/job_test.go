package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acp-node/core/contract"
	"acp-node/core/dispatcher"
	"acp-node/core/fare"
	"acp-node/core/models"
)

const homeChain uint64 = 8453

var (
	clientAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	providerAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	baseToken    = common.HexToAddress("0x833589fcd6ee7162a1bc0384ee61286bbbbbbbbb")
	tokenA       = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB       = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	paymentMgr   = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	foreignMgr   = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	fixedNow     = time.Unix(1700000000, 0)
)

type batch struct {
	target dispatcher.Target
	ops    []models.Operation
}

type recordingDispatcher struct {
	batches []batch
	events  *[]string
	err     error
}

func (r *recordingDispatcher) HandleOperation(_ context.Context, ops []models.Operation, opts ...dispatcher.CallOption) (*models.BatchResult, error) {
	target := dispatcher.ResolveTarget(homeChain, opts...)
	r.batches = append(r.batches, batch{target: target, ops: ops})
	if r.events != nil {
		*r.events = append(*r.events, fmt.Sprintf("dispatch:%d", target.ChainID))
	}
	if r.err != nil {
		return nil, r.err
	}
	return &models.BatchResult{ChainID: target.ChainID}, nil
}

type decimalsReader map[common.Address]uint8

func (d decimalsReader) Decimals(_ context.Context, _ uint64, token common.Address) (uint8, error) {
	v, ok := d[token]
	if !ok {
		return 0, errors.New("unknown token")
	}
	return v, nil
}

type allowanceReader struct {
	allowance *big.Int
	calls     int
}

func (a *allowanceReader) Allowance(_ context.Context, _ uint64, _, _, _ common.Address) (*big.Int, error) {
	a.calls++
	return a.allowance, nil
}

type budgetPayer struct {
	events *[]string
	paid   []*big.Int
}

func (b *budgetPayer) Pay(_ context.Context, jobID uint64, budget fare.Amount) error {
	b.paid = append(b.paid, budget.Units())
	*b.events = append(*b.events, fmt.Sprintf("pay:%d", jobID))
	return nil
}

type harness struct {
	dispatcher *recordingDispatcher
	allowances *allowanceReader
	budget     *budgetPayer
	events     []string
	deps       Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	contracts, err := contract.NewClient(contract.V2, contract.Addresses{
		ACP:            common.HexToAddress("0xa1"),
		JobManager:     common.HexToAddress("0xb1"),
		MemoManager:    common.HexToAddress("0xb2"),
		PaymentManager: paymentMgr,
	})
	require.NoError(t, err)

	h := &harness{allowances: &allowanceReader{allowance: new(big.Int)}}
	h.dispatcher = &recordingDispatcher{events: &h.events}
	h.budget = &budgetPayer{events: &h.events}
	h.deps = Deps{
		Contracts:              contracts,
		Dispatcher:             h.dispatcher,
		Fares:                  fare.NewResolver(fare.NewFare(baseToken, 18), homeChain, decimalsReader{tokenA: 6, tokenB: 18}),
		Allowances:             h.allowances,
		Budget:                 h.budget,
		Wallet:                 clientAddr,
		ForeignPaymentManagers: map[uint64]common.Address{1: foreignMgr},
		Logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:                    func() time.Time { return fixedNow },
	}
	return h
}

func (h *harness) job(w models.JobWire) *Job {
	if w.ClientAddress == (common.Address{}) {
		w.ClientAddress = clientAddr
	}
	if w.ProviderAddress == (common.Address{}) {
		w.ProviderAddress = providerAddr
	}
	return New(w, models.X402PaymentDetails{}, h.deps)
}

type call struct {
	target common.Address
	method string
	args   []interface{}
}

func decode(t *testing.T, op models.Operation) call {
	t.Helper()
	for _, a := range []abi.ABI{contract.ACPABI(), contract.ERC20ABI()} {
		m, err := a.MethodById(op.Data[:4])
		if err != nil {
			continue
		}
		args, err := m.Inputs.Unpack(op.Data[4:])
		require.NoError(t, err)
		return call{target: op.Target, method: m.Name, args: args}
	}
	t.Fatalf("unknown selector %x", op.Data[:4])
	return call{}
}

func decodeBatch(t *testing.T, b batch) []call {
	t.Helper()
	calls := make([]call, len(b.ops))
	for i, op := range b.ops {
		calls[i] = decode(t, op)
	}
	return calls
}

func methods(calls []call) []string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.method
	}
	return names
}

func units(v interface{}) string {
	return v.(*big.Int).String()
}

func TestNewParsesRequestTerms(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 1, Memos: []models.MemoWire{
		{ID: 1, NextPhase: models.PhaseNegotiation, Content: `{"serviceName":"swap","serviceRequirement":{"pair":"ETH/USDC"},"priceType":"percentage","priceValue":0.05}`},
		{ID: 2, NextPhase: models.PhaseNegotiation, Content: `{"name":"ignored"}`},
	}})

	assert.Equal(t, "swap", j.Name)
	assert.JSONEq(t, `{"pair":"ETH/USDC"}`, string(j.Requirement))
	assert.Equal(t, models.PriceTypePercentage, j.PriceType)
	assert.Equal(t, 0.05, j.PriceValue)
}

func TestNewKeepsDefaultsOnMalformedContent(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 1, Memos: []models.MemoWire{
		{ID: 1, NextPhase: models.PhaseNegotiation, Content: `not json`},
	}})
	assert.Empty(t, j.Name)
	assert.Nil(t, j.Requirement)
	assert.Equal(t, models.PriceTypeFixed, j.PriceType)
	assert.Zero(t, j.PriceValue)

	partial := h.job(models.JobWire{ID: 2, Memos: []models.MemoWire{
		{ID: 1, NextPhase: models.PhaseNegotiation, Content: `{"name":"report","requirement":"weekly","priceType":"auction","priceValue":"high"}`},
	}})
	assert.Equal(t, "report", partial.Name)
	text, ok := partial.RequirementText()
	require.True(t, ok)
	assert.Equal(t, "weekly", text)
	assert.Equal(t, models.PriceTypeFixed, partial.PriceType)
	assert.Zero(t, partial.PriceValue)
}

func TestDerivePhaseAndGetters(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 3, Phase: models.PhaseTransaction, Memos: []models.MemoWire{
		{ID: 1, NextPhase: models.PhaseNegotiation, Status: models.MemoStatusApproved},
		{ID: 2, NextPhase: models.PhaseTransaction, Status: models.MemoStatusApproved},
		{ID: 3, NextPhase: models.PhaseCompleted, Status: models.MemoStatusPending, Content: "result"},
	}})

	assert.Equal(t, models.PhaseTransaction, DerivePhase(j.Memos))
	assert.True(t, j.Consistent())
	assert.Equal(t, uint64(3), j.LatestMemo().ID)
	assert.Equal(t, uint64(2), j.RequirementMemo().ID)
	deliverable, ok := j.Deliverable()
	require.True(t, ok)
	assert.Equal(t, "result", deliverable)
	assert.Equal(t, clientAddr, j.ClientAgent())
	assert.Equal(t, providerAddr, j.ProviderAgent())
	assert.False(t, j.IsTerminal())
	assert.Equal(t, models.PhaseRequest, DerivePhase(nil))
}

func TestAcceptSignsLatestNegotiationMemo(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 42, Memos: []models.MemoWire{
		{ID: 7, NextPhase: models.PhaseNegotiation, Status: models.MemoStatusPending},
	}})

	_, err := j.Accept(context.Background(), "sounds good")
	require.NoError(t, err)

	require.Len(t, h.dispatcher.batches, 1)
	calls := decodeBatch(t, h.dispatcher.batches[0])
	require.Len(t, calls, 1)
	assert.Equal(t, "signMemo", calls[0].method)
	assert.Equal(t, "7", units(calls[0].args[0]))
	assert.Equal(t, true, calls[0].args[1])
	assert.Equal(t, "Job 42 accepted. sounds good", calls[0].args[2])
	assert.Equal(t, models.PhaseNegotiation, j.Phase)
}

func TestGateFailuresDispatchNothing(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 42, Phase: models.PhaseRequest, Memos: []models.MemoWire{
		{ID: 7, NextPhase: models.PhaseEvaluation},
	}})
	ctx := context.Background()

	cases := map[string]func() error{
		"accept": func() error { _, err := j.Accept(ctx, ""); return err },
		"reject": func() error { _, err := j.Reject(ctx, ""); return err },
		"pay":    func() error { _, err := j.PayAndAcceptRequirement(ctx, ""); return err },
		"eval":   func() error { _, err := j.Evaluate(ctx, true, ""); return err },
		"respond": func() error {
			_, err := j.Respond(ctx, true, "")
			return err
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn()
			var validation *models.ValidationError
			require.True(t, errors.As(err, &validation), "got %v", err)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
	assert.Empty(t, h.dispatcher.batches)
	assert.Equal(t, 0, h.allowances.calls)
}

func TestRejectDuringRequestSignsFalse(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 5, Phase: models.PhaseRequest, Memos: []models.MemoWire{
		{ID: 9, NextPhase: models.PhaseNegotiation},
	}})

	_, err := j.Reject(context.Background(), "busy")
	require.NoError(t, err)

	calls := decodeBatch(t, h.dispatcher.batches[0])
	require.Len(t, calls, 1)
	assert.Equal(t, "signMemo", calls[0].method)
	assert.Equal(t, false, calls[0].args[1])
	assert.Equal(t, "Job 5 rejected. busy", calls[0].args[2])
}

func TestRejectAfterRequestCreatesRejectionMemo(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 5, Phase: models.PhaseTransaction})

	_, err := j.Reject(context.Background(), "")
	require.NoError(t, err)

	calls := decodeBatch(t, h.dispatcher.batches[0])
	require.Len(t, calls, 1)
	assert.Equal(t, "createMemo", calls[0].method)
	assert.Equal(t, "Job 5 rejected.", calls[0].args[1])
	assert.Equal(t, uint8(models.MemoTypeMessage), calls[0].args[2])
	assert.Equal(t, uint8(models.PhaseRejected), calls[0].args[4])
}

func TestRespondAcceptPostsRequirement(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 8, Memos: []models.MemoWire{{ID: 1, NextPhase: models.PhaseNegotiation}}})

	_, err := j.Respond(context.Background(), true, "")
	require.NoError(t, err)

	require.Len(t, h.dispatcher.batches, 2)
	first := decodeBatch(t, h.dispatcher.batches[0])
	second := decodeBatch(t, h.dispatcher.batches[1])
	assert.Equal(t, []string{"signMemo"}, methods(first))
	assert.Equal(t, "Job 8 accepted.", first[0].args[2])
	assert.Equal(t, []string{"createMemo"}, methods(second))
	assert.Equal(t, "Job 8 accepted.", second[0].args[1])
	assert.Equal(t, uint8(models.PhaseTransaction), second[0].args[4])
}

func TestPayAndAcceptRequirementMergesSameTokenApproval(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{
		ID: 42, Phase: models.PhaseTransaction, Price: 1, PriceTokenAddress: baseToken,
		Memos: []models.MemoWire{{
			ID: 11, Type: models.MemoTypePayableRequest, NextPhase: models.PhaseTransaction, Status: models.MemoStatusPending,
			PayableDetails: &models.PayableDetails{Amount: models.NewBigInt(big.NewInt(5e17)), Token: baseToken, Recipient: providerAddr},
		}},
	})

	_, err := j.PayAndAcceptRequirement(context.Background(), "ok")
	require.NoError(t, err)

	require.Len(t, h.dispatcher.batches, 1)
	calls := decodeBatch(t, h.dispatcher.batches[0])
	assert.Equal(t, []string{"approve", "signMemo", "createMemo"}, methods(calls))

	assert.Equal(t, baseToken, calls[0].target)
	assert.Equal(t, paymentMgr, calls[0].args[0])
	assert.Equal(t, "1500000000000000000", units(calls[0].args[1]))

	assert.Equal(t, "11", units(calls[1].args[0]))
	assert.Equal(t, true, calls[1].args[1])

	assert.Equal(t, "Payment made. ok", calls[2].args[1])
	assert.Equal(t, uint8(models.MemoTypeMessage), calls[2].args[2])
	assert.Equal(t, uint8(models.PhaseEvaluation), calls[2].args[4])

	assert.Equal(t, models.MemoStatusApproved, j.Memos[0].Status)
	assert.Empty(t, h.budget.paid)
}

func TestPayAndAcceptRequirementApprovesEachToken(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{
		ID: 43, Price: 2.5, PriceTokenAddress: tokenA,
		Memos: []models.MemoWire{{
			ID: 12, Type: models.MemoTypePayableRequest, NextPhase: models.PhaseTransaction,
			PayableDetails: &models.PayableDetails{Amount: models.NewBigInt(big.NewInt(700)), Token: tokenB},
		}},
	})

	_, err := j.PayAndAcceptRequirement(context.Background(), "")
	require.NoError(t, err)

	calls := decodeBatch(t, h.dispatcher.batches[0])
	assert.Equal(t, []string{"approve", "approve", "signMemo", "createMemo"}, methods(calls))
	assert.Equal(t, tokenA, calls[0].target)
	assert.Equal(t, "2500000", units(calls[0].args[1]))
	assert.Equal(t, tokenB, calls[1].target)
	assert.Equal(t, "700", units(calls[1].args[1]))
	assert.Equal(t, "Payment made.", calls[3].args[1])
}

func TestPayAndAcceptRequirementWithoutPayableDetails(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 44, Price: 0.1234567, Memos: []models.MemoWire{
		{ID: 2, NextPhase: models.PhaseTransaction},
	}})

	_, err := j.PayAndAcceptRequirement(context.Background(), "")
	require.NoError(t, err)

	calls := decodeBatch(t, h.dispatcher.batches[0])
	assert.Equal(t, []string{"approve", "signMemo", "createMemo"}, methods(calls))
	assert.Equal(t, "123456000000000000", units(calls[0].args[1]))
}

func TestPayAndAcceptRequirementWithoutPayableDetailsInPriceToken(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 46, Price: 2, PriceTokenAddress: tokenA, Memos: []models.MemoWire{
		{ID: 3, NextPhase: models.PhaseTransaction},
	}})

	_, err := j.PayAndAcceptRequirement(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, h.dispatcher.batches, 1)
	calls := decodeBatch(t, h.dispatcher.batches[0])
	assert.Equal(t, []string{"approve", "signMemo", "createMemo"}, methods(calls))
	assert.Equal(t, tokenA, calls[0].target)
	assert.Equal(t, "2000000", units(calls[0].args[1]))
}

func TestPayAndAcceptRequirementCrossChain(t *testing.T) {
	h := newHarness(t)
	wire := models.JobWire{ID: 45, Price: 1, Memos: []models.MemoWire{{
		ID: 13, Type: models.MemoTypePayableRequest, NextPhase: models.PhaseTransaction, Status: models.MemoStatusPending,
		PayableDetails: &models.PayableDetails{Amount: models.NewBigInt(big.NewInt(1000)), Token: tokenB, ChainID: 1},
	}}}

	j := h.job(wire)
	_, err := j.PayAndAcceptRequirement(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, h.dispatcher.batches, 2)
	foreign := h.dispatcher.batches[0]
	assert.Equal(t, uint64(1), foreign.target.ChainID)
	assert.True(t, foreign.target.RequireFinality)
	foreignCalls := decodeBatch(t, foreign)
	assert.Equal(t, []string{"approve"}, methods(foreignCalls))
	assert.Equal(t, foreignMgr, foreignCalls[0].args[0])
	assert.Equal(t, "1000", units(foreignCalls[0].args[1]))

	home := decodeBatch(t, h.dispatcher.batches[1])
	assert.Equal(t, homeChain, h.dispatcher.batches[1].target.ChainID)
	assert.Equal(t, []string{"approve", "signMemo", "createMemo"}, methods(home))
	assert.Equal(t, baseToken, home[0].target)

	h2 := newHarness(t)
	h2.allowances.allowance = big.NewInt(5000)
	_, err = h2.job(wire).PayAndAcceptRequirement(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, h2.dispatcher.batches, 1, "sufficient foreign allowance skips the approval")
}

func TestPayAndAcceptRequirementRejectsSignedCrossChainRequest(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 46, Memos: []models.MemoWire{{
		ID: 14, Type: models.MemoTypePayableRequest, NextPhase: models.PhaseTransaction, Status: models.MemoStatusApproved,
		PayableDetails: &models.PayableDetails{Amount: models.NewBigInt(big.NewInt(1)), Token: tokenB, ChainID: 1},
	}}})

	_, err := j.PayAndAcceptRequirement(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Empty(t, h.dispatcher.batches)
}

func TestPayAndAcceptRequirementRunsBudgetPaymentFirst(t *testing.T) {
	h := newHarness(t)
	j := New(models.JobWire{ID: 47, Price: 3, ClientAddress: clientAddr, Memos: []models.MemoWire{
		{ID: 1, NextPhase: models.PhaseTransaction},
	}}, models.X402PaymentDetails{IsX402: true}, h.deps)

	_, err := j.PayAndAcceptRequirement(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{"pay:47", fmt.Sprintf("dispatch:%d", homeChain)}, h.events)
	require.Len(t, h.budget.paid, 1)
	assert.Equal(t, "3000000000000000000", h.budget.paid[0].String())
	assert.True(t, j.X402.IsBudgetReceived)
}

func TestDeliverPayableComputesPercentageFee(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 50, Memos: []models.MemoWire{
		{ID: 1, NextPhase: models.PhaseNegotiation, Content: `{"name":"fund","priceType":"percentage","priceValue":0.05}`},
	}})
	amount := fare.NewFareAmount(2, fare.NewFare(baseToken, 18))

	_, err := j.DeliverPayable(context.Background(), map[string]string{"report": "done"}, amount, false, time.Time{})
	require.NoError(t, err)

	calls := decodeBatch(t, h.dispatcher.batches[0])
	assert.Equal(t, []string{"approve", "createPayableMemo"}, methods(calls))
	memoArgs := calls[1].args
	assert.JSONEq(t, `{"report":"done"}`, memoArgs[1].(string))
	assert.Equal(t, baseToken, memoArgs[2])
	assert.Equal(t, "2000000000000000000", units(memoArgs[3]))
	assert.Equal(t, clientAddr, memoArgs[4])
	assert.Equal(t, "500", units(memoArgs[5]))
	assert.Equal(t, uint8(models.FeeTypePercentage), memoArgs[6])
	assert.Equal(t, uint8(models.MemoTypePayableTransfer), memoArgs[7])
	assert.Equal(t, uint8(models.PhaseCompleted), memoArgs[8])
	assert.Equal(t, fmt.Sprint(fixedNow.Add(DefaultPayableExpiry).Unix()), units(memoArgs[9]))

	_, err = j.DeliverPayable(context.Background(), "plain", amount, true, time.Time{})
	require.NoError(t, err)
	skipped := decodeBatch(t, h.dispatcher.batches[1])
	assert.Equal(t, "plain", skipped[1].args[1])
	assert.Equal(t, "0", units(skipped[1].args[5]))
	assert.Equal(t, uint8(models.FeeTypeNone), skipped[1].args[6])
}

func TestDeliverPayableCrossChainUsesCrossChainMemo(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 51})
	amount := fare.NewFareAmountBase(big.NewInt(10), fare.NewFare(tokenB, 18).WithChain(1))

	_, err := j.DeliverPayable(context.Background(), "x", amount, true, time.Time{})
	require.NoError(t, err)

	require.Len(t, h.dispatcher.batches, 2)
	assert.Equal(t, uint64(1), h.dispatcher.batches[0].target.ChainID)
	home := decodeBatch(t, h.dispatcher.batches[1])
	assert.Equal(t, []string{"createCrossChainPayableMemo"}, methods(home))
	assert.Equal(t, "1", units(home[0].args[10]))
}

func TestCreatePayableRequirement(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 52})
	amount := fare.NewFareAmount(1, fare.NewFare(baseToken, 18))
	expiry := fixedNow.Add(time.Hour)

	_, err := j.CreatePayableRequirement(context.Background(), "fund me", models.MemoTypePayableTransferEscrow, amount, providerAddr, expiry)
	require.NoError(t, err)
	calls := decodeBatch(t, h.dispatcher.batches[0])
	assert.Equal(t, []string{"approve", "createPayableMemo"}, methods(calls))
	assert.Equal(t, providerAddr, calls[1].args[4])
	assert.Equal(t, uint8(models.PhaseTransaction), calls[1].args[8])
	assert.Equal(t, fmt.Sprint(expiry.Unix()), units(calls[1].args[9]))

	_, err = j.CreatePayableRequirement(context.Background(), "pay me", models.MemoTypePayableRequest, amount, providerAddr, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []string{"createPayableMemo"}, methods(decodeBatch(t, h.dispatcher.batches[1])))

	_, err = j.CreatePayableRequirement(context.Background(), "x", models.MemoTypeMessage, amount, providerAddr, time.Time{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeliverEvaluateAndNotify(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 60, Memos: []models.MemoWire{{ID: 4, NextPhase: models.PhaseCompleted}}})
	ctx := context.Background()

	_, err := j.Deliver(ctx, map[string]int{"score": 9})
	require.NoError(t, err)
	deliver := decodeBatch(t, h.dispatcher.batches[0])
	assert.JSONEq(t, `{"score":9}`, deliver[0].args[1].(string))
	assert.Equal(t, uint8(models.PhaseCompleted), deliver[0].args[4])

	_, err = j.Evaluate(ctx, false, "wrong answer")
	require.NoError(t, err)
	eval := decodeBatch(t, h.dispatcher.batches[1])
	assert.Equal(t, "4", units(eval[0].args[0]))
	assert.Equal(t, false, eval[0].args[1])
	assert.Equal(t, "wrong answer", eval[0].args[2])

	_, err = j.CreateNotification(ctx, "heads up")
	require.NoError(t, err)
	note := decodeBatch(t, h.dispatcher.batches[2])
	assert.Equal(t, uint8(models.MemoTypeNotification), note[0].args[2])

	_, err = j.CreatePayableNotification(ctx, "profit", fare.NewFareAmount(1, fare.NewFare(baseToken, 18)), true, time.Time{})
	require.NoError(t, err)
	payNote := decodeBatch(t, h.dispatcher.batches[3])
	assert.Equal(t, []string{"approve", "createPayableMemo"}, methods(payNote))
	assert.Equal(t, uint8(models.MemoTypePayableNotification), payNote[1].args[7])
}

func TestRejectPayableRefundsClient(t *testing.T) {
	h := newHarness(t)
	j := h.job(models.JobWire{ID: 61, Phase: models.PhaseTransaction})

	_, err := j.RejectPayable(context.Background(), "cannot fill", fare.NewFareAmount(1, fare.NewFare(baseToken, 18)), time.Time{})
	require.NoError(t, err)

	calls := decodeBatch(t, h.dispatcher.batches[0])
	assert.Equal(t, []string{"approve", "createPayableMemo"}, methods(calls))
	assert.Equal(t, "Job 61 rejected. cannot fill", calls[1].args[1])
	assert.Equal(t, clientAddr, calls[1].args[4])
	assert.Equal(t, uint8(models.PhaseRejected), calls[1].args[8])
}

func TestDispatchErrorsPropagate(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.err = fmt.Errorf("wrapped: %w", models.ErrDispatch)
	j := h.job(models.JobWire{ID: 62})

	_, err := j.CreateRequirement(context.Background(), "terms")
	assert.ErrorIs(t, err, models.ErrDispatch)
}
