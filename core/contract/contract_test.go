package contract

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acp-node/core/models"
)

var (
	acpAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	jobMgr      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	memoMgr     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	paymentMgr  = common.HexToAddress("0x00000000000000000000000000000000000000b3")
	clientAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	providerAdr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	evalAddr    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokenAddr   = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func v2Client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(V2, Addresses{ACP: acpAddr, JobManager: jobMgr, MemoManager: memoMgr, PaymentManager: paymentMgr})
	require.NoError(t, err)
	return c
}

func unpackArgs(t *testing.T, op models.Operation, method string) []interface{} {
	t.Helper()
	m, ok := acpABI.Methods[method]
	if !ok {
		m = erc20ABI.Methods[method]
	}
	require.Equal(t, m.ID, op.Data[:4])
	args, err := m.Inputs.Unpack(op.Data[4:])
	require.NoError(t, err)
	return args
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(3, Addresses{ACP: acpAddr})
	assert.Error(t, err)

	_, err = NewClient(V2, Addresses{})
	assert.Error(t, err)
}

func TestV1RoutesEverythingToACP(t *testing.T) {
	c, err := NewClient(V1, Addresses{ACP: acpAddr, MemoManager: memoMgr})
	require.NoError(t, err)

	op, err := c.CreateMemo(7, "hi", models.MemoTypeMessage, false, models.PhaseTransaction)
	require.NoError(t, err)
	assert.Equal(t, acpAddr, op.Target)

	approve, err := c.ApproveAllowance(big.NewInt(10), tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, approve.Target)
	args := unpackArgs(t, approve, "approve")
	assert.Equal(t, acpAddr, args[0])

	assert.False(t, c.SupportsCrossChain())
	_, err = c.CreateCrossChainPayableMemo(PayableMemoParams{JobID: 1}, 8453)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCreateMemoCalldata(t *testing.T) {
	c := v2Client(t)
	op, err := c.CreateMemo(42, "Payment made.", models.MemoTypeMessage, true, models.PhaseEvaluation)
	require.NoError(t, err)

	assert.Equal(t, memoMgr, op.Target)
	assert.Equal(t, "createMemo", op.Label)
	assert.Equal(t, 0, op.Value.Sign())

	args := unpackArgs(t, op, "createMemo")
	assert.Equal(t, "42", args[0].(*big.Int).String())
	assert.Equal(t, "Payment made.", args[1])
	assert.Equal(t, uint8(models.MemoTypeMessage), args[2])
	assert.Equal(t, true, args[3])
	assert.Equal(t, uint8(models.PhaseEvaluation), args[4])
}

func TestCreatePayableMemoCalldata(t *testing.T) {
	c := v2Client(t)
	expiry := time.Unix(1700000300, 0)
	op, err := c.CreatePayableMemo(PayableMemoParams{
		JobID:     9,
		Content:   "deliver",
		Token:     tokenAddr,
		Amount:    big.NewInt(1500),
		Recipient: clientAddr,
		FeeAmount: big.NewInt(500),
		FeeType:   models.FeeTypePercentage,
		MemoType:  models.MemoTypePayableTransfer,
		NextPhase: models.PhaseCompleted,
		ExpiredAt: expiry,
	})
	require.NoError(t, err)

	args := unpackArgs(t, op, "createPayableMemo")
	assert.Equal(t, tokenAddr, args[2])
	assert.Equal(t, "1500", args[3].(*big.Int).String())
	assert.Equal(t, clientAddr, args[4])
	assert.Equal(t, "500", args[5].(*big.Int).String())
	assert.Equal(t, uint8(models.FeeTypePercentage), args[6])
	assert.Equal(t, uint8(models.MemoTypePayableTransfer), args[7])
	assert.Equal(t, uint8(models.PhaseCompleted), args[8])
	assert.Equal(t, "1700000300", args[9].(*big.Int).String())

	cross, err := c.CreateCrossChainPayableMemo(PayableMemoParams{JobID: 9, Amount: big.NewInt(1)}, 8453)
	require.NoError(t, err)
	crossArgs := unpackArgs(t, cross, "createCrossChainPayableMemo")
	assert.Equal(t, "8453", crossArgs[10].(*big.Int).String())
}

func TestSignMemoAndApprove(t *testing.T) {
	c := v2Client(t)
	op, err := c.SignMemo(77, false, "no")
	require.NoError(t, err)
	args := unpackArgs(t, op, "signMemo")
	assert.Equal(t, "77", args[0].(*big.Int).String())
	assert.Equal(t, false, args[1])
	assert.Equal(t, "no", args[2])

	approve, err := c.ApproveAllowance(nil, tokenAddr)
	require.NoError(t, err)
	approveArgs := unpackArgs(t, approve, "approve")
	assert.Equal(t, paymentMgr, approveArgs[0])
	assert.Equal(t, "0", approveArgs[1].(*big.Int).String())
}

func TestDecodeReads(t *testing.T) {
	out, err := acpABI.Methods["x402PaymentDetails"].Outputs.Pack(true, false)
	require.NoError(t, err)
	details, err := DecodeX402PaymentDetails(out)
	require.NoError(t, err)
	assert.True(t, details.IsX402)
	assert.False(t, details.IsBudgetReceived)

	allowance, err := erc20ABI.Methods["allowance"].Outputs.Pack(big.NewInt(123))
	require.NoError(t, err)
	v, err := DecodeAllowance(allowance)
	require.NoError(t, err)
	assert.Equal(t, "123", v.String())

	dec, err := erc20ABI.Methods["decimals"].Outputs.Pack(uint8(18))
	require.NoError(t, err)
	d, err := DecodeDecimals(dec)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), d)

	_, err = DecodeDecimals([]byte{0x01})
	assert.Error(t, err)
}

func TestJobIDFromLogs(t *testing.T) {
	c := v2Client(t)

	other, err := NewJobCreatedLog(jobMgr, JobCreatedEvent{JobID: 5, Client: clientAddr, Provider: evalAddr, Evaluator: evalAddr})
	require.NoError(t, err)
	foreign, err := NewJobCreatedLog(acpAddr, JobCreatedEvent{JobID: 6, Client: clientAddr, Provider: providerAdr})
	require.NoError(t, err)
	match, err := NewJobCreatedLog(jobMgr, JobCreatedEvent{JobID: 42, Client: clientAddr, Provider: providerAdr, Evaluator: evalAddr})
	require.NoError(t, err)
	noise := types.Log{Address: jobMgr, Topics: []common.Hash{common.HexToHash("0xdead")}}

	id, err := c.JobIDFromLogs([]types.Log{noise, other, foreign, match}, clientAddr, providerAdr)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = c.JobIDFromLogs([]types.Log{other, foreign}, clientAddr, providerAdr)
	assert.ErrorIs(t, err, models.ErrProtocol)
}

func TestDecodeJobCreated(t *testing.T) {
	lg, err := NewJobCreatedLog(jobMgr, JobCreatedEvent{JobID: 42, Client: clientAddr, Provider: providerAdr, Evaluator: evalAddr})
	require.NoError(t, err)

	ev, err := DecodeJobCreated(lg)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), ev.JobID)
	assert.Equal(t, clientAddr, ev.Client)
	assert.Equal(t, providerAdr, ev.Provider)
	assert.Equal(t, evalAddr, ev.Evaluator)
}

func TestMemoIDsFromLogs(t *testing.T) {
	c := v2Client(t)
	lg, err := NewMemoCreatedLog(memoMgr, MemoCreatedEvent{
		JobID: 42, MemoID: 100, Sender: providerAdr,
		MemoType: models.MemoTypePayableRequest, NextPhase: models.PhaseTransaction, Content: "pay me",
	})
	require.NoError(t, err)
	stray, err := NewMemoCreatedLog(jobMgr, MemoCreatedEvent{JobID: 1, MemoID: 1})
	require.NoError(t, err)

	events := c.MemoIDsFromLogs([]types.Log{stray, lg})
	require.Len(t, events, 1)
	assert.Equal(t, uint64(100), events[0].MemoID)
	assert.Equal(t, uint64(42), events[0].JobID)
	assert.Equal(t, providerAdr, events[0].Sender)
	assert.Equal(t, models.MemoTypePayableRequest, events[0].MemoType)
	assert.Equal(t, models.PhaseTransaction, events[0].NextPhase)
	assert.Equal(t, "pay me", events[0].Content)
}
