package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"acp-node/core/contract"
	"acp-node/core/dispatcher"
	"acp-node/core/fare"
	"acp-node/core/memo"
	"acp-node/core/models"
)

// Accept approves the pending negotiation request
func (j *Job) Accept(ctx context.Context, reason string) (*models.BatchResult, error) {
	m := acceptGate(j.Memos)
	if m == nil {
		return nil, models.NewValidationError("accept", fmt.Sprintf("job %d has no memo awaiting negotiation", j.ID))
	}
	message := strings.TrimSpace(fmt.Sprintf("Job %d accepted. %s", j.ID, reason))
	result, err := m.Sign(ctx, true, message)
	if err != nil {
		return nil, err
	}
	j.Phase = m.NextPhase
	j.logger.Info("job accepted", "memo_id", m.ID)
	return result, nil
}

// Reject declines the job. A request is declined by signing its negotiation
// memo; later phases append a rejection memo.
func (j *Job) Reject(ctx context.Context, reason string) (*models.BatchResult, error) {
	message := strings.TrimSpace(fmt.Sprintf("Job %d rejected. %s", j.ID, reason))
	if j.Phase == models.PhaseRequest {
		m := rejectGate(j.Memos)
		if m == nil {
			return nil, models.NewValidationError("reject", fmt.Sprintf("job %d has no memo awaiting negotiation", j.ID))
		}
		result, err := m.Sign(ctx, false, message)
		if err != nil {
			return nil, err
		}
		j.Phase = models.PhaseRejected
		j.logger.Info("job request rejected", "memo_id", m.ID)
		return result, nil
	}

	op, err := j.deps.Contracts.CreateMemo(j.ID, message, models.MemoTypeMessage, true, models.PhaseRejected)
	if err != nil {
		return nil, err
	}
	result, err := j.dispatch(ctx, "reject", op)
	if err != nil {
		return nil, err
	}
	j.logger.Info("job rejected", "phase", j.Phase.String())
	return result, nil
}

// Respond accepts and posts the requirement, or rejects
func (j *Job) Respond(ctx context.Context, accept bool, reason string) (*models.BatchResult, error) {
	if !accept {
		return j.Reject(ctx, reason)
	}
	if _, err := j.Accept(ctx, reason); err != nil {
		return nil, err
	}
	content := reason
	if content == "" {
		content = fmt.Sprintf("Job %d accepted.", j.ID)
	}
	return j.CreateRequirement(ctx, content)
}

// CreateRequirement posts the provider's terms, moving the job to TRANSACTION once signed
func (j *Job) CreateRequirement(ctx context.Context, content string) (*models.BatchResult, error) {
	op, err := j.deps.Contracts.CreateMemo(j.ID, content, models.MemoTypeMessage, true, models.PhaseTransaction)
	if err != nil {
		return nil, err
	}
	return j.dispatch(ctx, "createRequirement", op)
}

// CreatePayableRequirement posts terms that carry a transfer of amount to recipient
func (j *Job) CreatePayableRequirement(ctx context.Context, content string, memoType models.MemoType, amount fare.Amount, recipient common.Address, expiredAt time.Time) (*models.BatchResult, error) {
	if !memoType.IsPayable() {
		return nil, models.NewValidationError("createPayableRequirement", fmt.Sprintf("memo type %s is not payable", memoType))
	}
	if amount == nil {
		return nil, models.NewValidationError("createPayableRequirement", "amount is required")
	}
	crossChain := amount.Fare().IsCrossChain(j.homeChainID())

	var ops []models.Operation
	if memoType == models.MemoTypePayableTransferEscrow && !crossChain {
		approve, err := j.deps.Contracts.ApproveAllowance(amount.Units(), amount.Fare().ContractAddress)
		if err != nil {
			return nil, err
		}
		ops = append(ops, approve)
	}

	feeAmount, feeType := fare.ComputeFee(j.PriceType, j.PriceValue, false)
	memoOp, err := j.payableMemo(contract.PayableMemoParams{
		JobID:     j.ID,
		Content:   content,
		Token:     amount.Fare().ContractAddress,
		Amount:    amount.Units(),
		Recipient: recipient,
		FeeAmount: feeAmount,
		FeeType:   feeType,
		MemoType:  memoType,
		NextPhase: models.PhaseTransaction,
		ExpiredAt: j.expiryOrDefault(expiredAt),
	}, amount.Fare())
	if err != nil {
		return nil, err
	}
	ops = append(ops, memoOp)
	return j.dispatch(ctx, "createPayableRequirement", ops...)
}

// PayAndAcceptRequirement funds the job, accepts the requirement memo and
// moves the job to EVALUATION.
func (j *Job) PayAndAcceptRequirement(ctx context.Context, reason string) (*models.BatchResult, error) {
	m := paymentGate(j.Memos)
	if m == nil {
		return nil, models.NewValidationError("payAndAcceptRequirement", fmt.Sprintf("job %d has no requirement memo", j.ID))
	}
	home := j.homeChainID()
	crossChain := m.IsCrossChain(home)
	if crossChain && m.Type == models.MemoTypePayableRequest && !m.IsPending() {
		return nil, models.NewValidationError("payAndAcceptRequirement",
			fmt.Sprintf("cross-chain payable request %d is %s", m.ID, m.Status))
	}

	price, err := j.priceAmount(ctx)
	if err != nil {
		return nil, err
	}
	transfer, err := j.transferAmount(ctx, m)
	if err != nil {
		return nil, err
	}

	var ops []models.Operation
	switch {
	case transfer == nil:
		op, err := j.deps.Contracts.ApproveAllowance(price.Units(), price.Fare().ContractAddress)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	case crossChain:
		if err := j.topUpForeignAllowance(ctx, transfer); err != nil {
			return nil, err
		}
		op, err := j.deps.Contracts.ApproveAllowance(price.Units(), price.Fare().ContractAddress)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	case price.Fare().SameAsset(transfer.Fare()):
		total, err := price.Add(transfer)
		if err != nil {
			return nil, err
		}
		op, err := j.deps.Contracts.ApproveAllowance(total.Units(), total.Fare().ContractAddress)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	default:
		priceOp, err := j.deps.Contracts.ApproveAllowance(price.Units(), price.Fare().ContractAddress)
		if err != nil {
			return nil, err
		}
		transferOp, err := j.deps.Contracts.ApproveAllowance(transfer.Units(), transfer.Fare().ContractAddress)
		if err != nil {
			return nil, err
		}
		ops = append(ops, priceOp, transferOp)
	}

	signOp, err := m.SignOperation(true, reason)
	if err != nil {
		return nil, err
	}
	paidOp, err := j.deps.Contracts.CreateMemo(j.ID, strings.TrimSpace("Payment made. "+reason), models.MemoTypeMessage, true, models.PhaseEvaluation)
	if err != nil {
		return nil, err
	}
	ops = append(ops, signOp, paidOp)

	if j.Price > 0 && j.X402.IsX402 {
		if j.deps.Budget == nil {
			return nil, fmt.Errorf("job %d requires budget payment but no payer is configured", j.ID)
		}
		if err := j.deps.Budget.Pay(ctx, j.ID, price); err != nil {
			return nil, fmt.Errorf("failed to pay budget of job %d: %w", j.ID, err)
		}
		j.X402.IsBudgetReceived = true
	}

	result, err := j.dispatch(ctx, "payAndAcceptRequirement", ops...)
	if err != nil {
		return nil, err
	}
	m.MarkSigned(true, reason)
	j.Phase = m.NextPhase
	return result, nil
}

// transferAmount is the amount the requirement memo moves, nil when it moves nothing
func (j *Job) transferAmount(ctx context.Context, m *memo.Memo) (fare.Amount, error) {
	if m.PayableDetails == nil {
		return nil, nil
	}
	f, err := j.deps.Fares.FromContractAddress(ctx, m.PayableDetails.Token, m.PayableDetails.ChainID)
	if err != nil {
		return nil, err
	}
	return fare.NewFareAmountBase(m.PayableDetails.Amount.Big(), f), nil
}

// topUpForeignAllowance approves amount on its own chain unless the current allowance covers it
func (j *Job) topUpForeignAllowance(ctx context.Context, amount fare.Amount) error {
	chainID := amount.Fare().ChainID
	spender, ok := j.deps.ForeignPaymentManagers[chainID]
	if !ok {
		return models.NewValidationError("allowance", fmt.Sprintf("no payment manager configured for chain %d", chainID))
	}
	if j.deps.Allowances == nil {
		return fmt.Errorf("no allowance reader for chain %d", chainID)
	}
	token := amount.Fare().ContractAddress
	current, err := j.deps.Allowances.Allowance(ctx, chainID, token, j.deps.Wallet, spender)
	if err != nil {
		return fmt.Errorf("failed to read allowance on chain %d: %w", chainID, err)
	}
	needed := amount.Units()
	if current.Cmp(needed) >= 0 {
		j.logger.Debug("foreign allowance sufficient", "chain_id", chainID, "allowance", current.String())
		return nil
	}
	op, err := j.deps.Contracts.ApproveAllowanceFor(needed, token, spender)
	if err != nil {
		return err
	}
	if _, err := j.deps.Dispatcher.HandleOperation(ctx, []models.Operation{op}, dispatcher.OnChain(chainID), dispatcher.RequireFinality()); err != nil {
		return fmt.Errorf("failed to approve allowance on chain %d: %w", chainID, err)
	}
	j.logger.Info("foreign allowance approved", "chain_id", chainID, "amount", needed.String())
	return nil
}

// Deliver posts the deliverable, moving the job to COMPLETED once evaluated
func (j *Job) Deliver(ctx context.Context, deliverable any) (*models.BatchResult, error) {
	content, err := encodeDeliverable(deliverable)
	if err != nil {
		return nil, err
	}
	op, err := j.deps.Contracts.CreateMemo(j.ID, content, models.MemoTypeMessage, true, models.PhaseCompleted)
	if err != nil {
		return nil, err
	}
	return j.dispatch(ctx, "deliver", op)
}

// DeliverPayable posts the deliverable together with a transfer to the client
func (j *Job) DeliverPayable(ctx context.Context, deliverable any, amount fare.Amount, skipFee bool, expiredAt time.Time) (*models.BatchResult, error) {
	content, err := encodeDeliverable(deliverable)
	if err != nil {
		return nil, err
	}
	return j.payableToClient(ctx, "deliverPayable", content, amount, skipFee, models.MemoTypePayableTransfer, models.PhaseCompleted, expiredAt)
}

// Evaluate signs the delivery memo
func (j *Job) Evaluate(ctx context.Context, accept bool, reason string) (*models.BatchResult, error) {
	m := evaluationGate(j.Memos)
	if m == nil {
		return nil, models.NewValidationError("evaluate", fmt.Sprintf("job %d has no deliverable awaiting evaluation", j.ID))
	}
	result, err := m.Sign(ctx, accept, reason)
	if err != nil {
		return nil, err
	}
	if accept {
		j.Phase = models.PhaseCompleted
	}
	j.logger.Info("job evaluated", "memo_id", m.ID, "accepted", accept)
	return result, nil
}

// CreateNotification posts an informational memo
func (j *Job) CreateNotification(ctx context.Context, content string) (*models.BatchResult, error) {
	op, err := j.deps.Contracts.CreateMemo(j.ID, content, models.MemoTypeNotification, true, models.PhaseCompleted)
	if err != nil {
		return nil, err
	}
	return j.dispatch(ctx, "createNotification", op)
}

// CreatePayableNotification posts a notification carrying a transfer to the client
func (j *Job) CreatePayableNotification(ctx context.Context, content string, amount fare.Amount, skipFee bool, expiredAt time.Time) (*models.BatchResult, error) {
	return j.payableToClient(ctx, "createPayableNotification", content, amount, skipFee, models.MemoTypePayableNotification, models.PhaseCompleted, expiredAt)
}

// RejectPayable rejects the job and refunds amount to the client
func (j *Job) RejectPayable(ctx context.Context, reason string, amount fare.Amount, expiredAt time.Time) (*models.BatchResult, error) {
	content := strings.TrimSpace(fmt.Sprintf("Job %d rejected. %s", j.ID, reason))
	return j.payableToClient(ctx, "rejectPayable", content, amount, true, models.MemoTypePayableTransfer, models.PhaseRejected, expiredAt)
}

func (j *Job) payableToClient(ctx context.Context, op, content string, amount fare.Amount, skipFee bool, memoType models.MemoType, next models.Phase, expiredAt time.Time) (*models.BatchResult, error) {
	if amount == nil {
		return nil, models.NewValidationError(op, "amount is required")
	}
	crossChain := amount.Fare().IsCrossChain(j.homeChainID())

	var ops []models.Operation
	if crossChain {
		if err := j.topUpForeignAllowance(ctx, amount); err != nil {
			return nil, err
		}
	} else {
		approve, err := j.deps.Contracts.ApproveAllowance(amount.Units(), amount.Fare().ContractAddress)
		if err != nil {
			return nil, err
		}
		ops = append(ops, approve)
	}

	feeAmount, feeType := fare.ComputeFee(j.PriceType, j.PriceValue, skipFee)
	memoOp, err := j.payableMemo(contract.PayableMemoParams{
		JobID:     j.ID,
		Content:   content,
		Token:     amount.Fare().ContractAddress,
		Amount:    amount.Units(),
		Recipient: j.ClientAddress,
		FeeAmount: feeAmount,
		FeeType:   feeType,
		MemoType:  memoType,
		NextPhase: next,
		ExpiredAt: j.expiryOrDefault(expiredAt),
	}, amount.Fare())
	if err != nil {
		return nil, err
	}
	ops = append(ops, memoOp)
	return j.dispatch(ctx, op, ops...)
}

func (j *Job) payableMemo(p contract.PayableMemoParams, f fare.Fare) (models.Operation, error) {
	if f.IsCrossChain(j.homeChainID()) {
		return j.deps.Contracts.CreateCrossChainPayableMemo(p, f.ChainID)
	}
	return j.deps.Contracts.CreatePayableMemo(p)
}

func (j *Job) dispatch(ctx context.Context, op string, ops ...models.Operation) (*models.BatchResult, error) {
	result, err := j.deps.Dispatcher.HandleOperation(ctx, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to %s job %d: %w", op, j.ID, err)
	}
	j.logger.Info("job operation dispatched", "op", op, "op_hash", result.OperationHash.Hex())
	return result, nil
}

func encodeDeliverable(deliverable any) (string, error) {
	switch v := deliverable.(type) {
	case string:
		return v, nil
	case json.RawMessage:
		return string(v), nil
	}
	raw, err := json.Marshal(deliverable)
	if err != nil {
		return "", fmt.Errorf("failed to encode deliverable: %w", err)
	}
	return string(raw), nil
}
