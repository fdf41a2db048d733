package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"acp-node/core/contract"
	"acp-node/core/dispatcher"
	"acp-node/core/models"
)

// Dispatcher submits memo operations
type Dispatcher interface {
	HandleOperation(ctx context.Context, ops []models.Operation, opts ...dispatcher.CallOption) (*models.BatchResult, error)
}

// Memo is a signed ledger entry of a job
type Memo struct {
	ID             uint64
	Type           models.MemoType
	Content        string
	NextPhase      models.Phase
	Status         models.MemoStatus
	Sender         common.Address
	SignedReason   *string
	Expiry         *time.Time
	PayableDetails *models.PayableDetails

	// StructuredContent is the content parsed as a JSON object, nil when it is not one
	StructuredContent map[string]json.RawMessage

	contracts  *contract.Client
	dispatcher Dispatcher
}

// New builds a memo from its wire form
func New(w models.MemoWire, contracts *contract.Client, d Dispatcher) *Memo {
	m := &Memo{
		ID:             w.ID,
		Type:           w.Type,
		Content:        w.Content,
		NextPhase:      w.NextPhase,
		Status:         w.Status,
		Sender:         w.SenderAddress,
		SignedReason:   w.SignedReason,
		PayableDetails: w.PayableDetails,
		contracts:      contracts,
		dispatcher:     d,
	}
	if m.Status == "" {
		m.Status = models.MemoStatusPending
	}
	if w.Expiry != nil && *w.Expiry > 0 {
		exp := time.Unix(*w.Expiry, 0)
		m.Expiry = &exp
	}
	var structured map[string]json.RawMessage
	if err := json.Unmarshal([]byte(w.Content), &structured); err == nil {
		m.StructuredContent = structured
	}
	return m
}

// PayloadType returns the type field of the structured content, if any
func (m *Memo) PayloadType() (PayloadType, bool) {
	raw, ok := m.StructuredContent["type"]
	if !ok {
		return "", false
	}
	var t string
	if err := json.Unmarshal(raw, &t); err != nil || t == "" {
		return "", false
	}
	return PayloadType(t), true
}

// Payloads decodes the structured content into typed payloads
func (m *Memo) Payloads() []Payload {
	if _, ok := m.PayloadType(); !ok {
		return nil
	}
	return DecodePayloads(json.RawMessage(m.Content))
}

// Payload returns the first decoded payload
func (m *Memo) Payload() (Payload, bool) {
	payloads := m.Payloads()
	if len(payloads) == 0 {
		return nil, false
	}
	return payloads[0], true
}

// IsExpired reports whether the memo expiry is at or before now
func (m *Memo) IsExpired(now time.Time) bool {
	return m.Expiry != nil && !now.Before(*m.Expiry)
}

// IsPending reports whether the memo awaits a signature
func (m *Memo) IsPending() bool {
	return m.Status == models.MemoStatusPending
}

// IsCrossChain reports whether the memo transfer settles off the home chain
func (m *Memo) IsCrossChain(homeChainID uint64) bool {
	return m.PayableDetails != nil && m.PayableDetails.ChainID != 0 && m.PayableDetails.ChainID != homeChainID
}

// SignOperation builds the signMemo operation without dispatching it
func (m *Memo) SignOperation(approved bool, reason string) (models.Operation, error) {
	if m.contracts == nil {
		return models.Operation{}, fmt.Errorf("memo %d has no contract client", m.ID)
	}
	return m.contracts.SignMemo(m.ID, approved, reason)
}

// Sign approves or rejects the memo on-chain
func (m *Memo) Sign(ctx context.Context, approved bool, reason string) (*models.BatchResult, error) {
	if m.dispatcher == nil {
		return nil, fmt.Errorf("memo %d has no dispatcher", m.ID)
	}
	op, err := m.SignOperation(approved, reason)
	if err != nil {
		return nil, err
	}
	result, err := m.dispatcher.HandleOperation(ctx, []models.Operation{op})
	if err != nil {
		return nil, fmt.Errorf("failed to sign memo %d: %w", m.ID, err)
	}
	m.MarkSigned(approved, reason)
	return result, nil
}

// MarkSigned records a signature dispatched as part of a larger batch
func (m *Memo) MarkSigned(approved bool, reason string) {
	if approved {
		m.Status = models.MemoStatusApproved
	} else {
		m.Status = models.MemoStatusRejected
	}
	r := reason
	m.SignedReason = &r
}
