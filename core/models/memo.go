package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MemoType identifies what a memo carries
type MemoType uint8

const (
	MemoTypeMessage MemoType = iota
	MemoTypeContextURL
	MemoTypeImageURL
	MemoTypeVoiceURL
	MemoTypeObjectURL
	MemoTypeTxHash
	MemoTypePayableRequest
	MemoTypePayableTransfer
	MemoTypePayableTransferEscrow
	MemoTypeNotification
	MemoTypePayableNotification
	MemoTypePayableRequestSubscription
)

var memoTypeNames = map[MemoType]string{
	MemoTypeMessage:                    "MESSAGE",
	MemoTypeContextURL:                 "CONTEXT_URL",
	MemoTypeImageURL:                   "IMAGE_URL",
	MemoTypeVoiceURL:                   "VOICE_URL",
	MemoTypeObjectURL:                  "OBJECT_URL",
	MemoTypeTxHash:                     "TXHASH",
	MemoTypePayableRequest:             "PAYABLE_REQUEST",
	MemoTypePayableTransfer:            "PAYABLE_TRANSFER",
	MemoTypePayableTransferEscrow:      "PAYABLE_TRANSFER_ESCROW",
	MemoTypeNotification:               "NOTIFICATION",
	MemoTypePayableNotification:        "PAYABLE_NOTIFICATION",
	MemoTypePayableRequestSubscription: "PAYABLE_REQUEST_SUBSCRIPTION",
}

// String returns the protocol name of the memo type
func (t MemoType) String() string {
	if name, ok := memoTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MEMO_TYPE(%d)", uint8(t))
}

// IsPayable reports whether memos of this type move funds when signed
func (t MemoType) IsPayable() bool {
	switch t {
	case MemoTypePayableRequest, MemoTypePayableTransfer, MemoTypePayableTransferEscrow,
		MemoTypePayableNotification, MemoTypePayableRequestSubscription:
		return true
	}
	return false
}

// UnmarshalJSON accepts the numeric wire value or the type name
func (t *MemoType) UnmarshalJSON(data []byte) error {
	var n uint8
	if err := json.Unmarshal(data, &n); err == nil {
		if _, ok := memoTypeNames[MemoType(n)]; !ok {
			return fmt.Errorf("unknown memo type %d", n)
		}
		*t = MemoType(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid memo type %s", string(data))
	}
	for memoType, name := range memoTypeNames {
		if strings.EqualFold(name, s) {
			*t = memoType
			return nil
		}
	}
	return fmt.Errorf("unknown memo type %q", s)
}

// MemoStatus is the signing state of a memo
type MemoStatus string

const (
	MemoStatusPending  MemoStatus = "PENDING"
	MemoStatusApproved MemoStatus = "APPROVED"
	MemoStatusRejected MemoStatus = "REJECTED"
)

// PayableDetails describes the transfer attached to a payable memo
type PayableDetails struct {
	Amount    BigInt         `json:"amount"`
	Token     common.Address `json:"token"`
	Recipient common.Address `json:"recipient"`
	FeeAmount BigInt         `json:"feeAmount"`
	// ChainID is set when the transfer settles on a chain other than the job's home chain
	ChainID uint64 `json:"chainId,omitempty"`
}

// MemoWire is the memo shape delivered by the backend and push events
type MemoWire struct {
	ID             uint64          `json:"id"`
	Type           MemoType        `json:"type"`
	Content        string          `json:"content"`
	NextPhase      Phase           `json:"nextPhase"`
	Status         MemoStatus      `json:"status"`
	SenderAddress  common.Address  `json:"senderAddress"`
	SignedReason   *string         `json:"signedReason,omitempty"`
	Expiry         *int64          `json:"expiry,omitempty"`
	PayableDetails *PayableDetails `json:"payableDetails,omitempty"`
}
