package memo

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PayloadType discriminates application payloads carried in memo content
type PayloadType string

const (
	PayloadFundResponse         PayloadType = "fund_response"
	PayloadOpenPosition         PayloadType = "open_position"
	PayloadClosePosition        PayloadType = "close_position"
	PayloadClosePartialPosition PayloadType = "close_partial_position"
	PayloadSwapToken            PayloadType = "swap_token"
	PayloadPositionFulfilled    PayloadType = "position_fulfilled"
	PayloadUnfulfilledPosition  PayloadType = "unfulfilled_position"
	PayloadCloseJobAndWithdraw  PayloadType = "close_job_and_withdraw"
)

// Payload is one decoded application payload
type Payload interface {
	Kind() PayloadType
}

// FundResponse tells the client where the provider reports fund activity
type FundResponse struct {
	ReportingAPIEndpoint string `json:"reportingApiEndpoint"`
	WalletAddress        string `json:"walletAddress,omitempty"`
}

func (FundResponse) Kind() PayloadType { return PayloadFundResponse }

// Trigger is a take-profit or stop-loss level
type Trigger struct {
	Price      *decimal.Decimal `json:"price,omitempty"`
	Percentage *decimal.Decimal `json:"percentage,omitempty"`
}

// OpenPosition requests a new trading position
type OpenPosition struct {
	Symbol          string          `json:"symbol"`
	Amount          decimal.Decimal `json:"amount"`
	ChainID         uint64          `json:"chainId,omitempty"`
	ContractAddress string          `json:"contractAddress,omitempty"`
	TP              *Trigger        `json:"tp,omitempty"`
	SL              *Trigger        `json:"sl,omitempty"`
}

func (OpenPosition) Kind() PayloadType { return PayloadOpenPosition }

// ClosePosition requests closing a whole position
type ClosePosition struct {
	PositionID uint64          `json:"positionId"`
	Amount     decimal.Decimal `json:"amount"`
}

func (ClosePosition) Kind() PayloadType { return PayloadClosePosition }

// ClosePartialPosition requests closing part of a position
type ClosePartialPosition struct {
	PositionID uint64          `json:"positionId"`
	Amount     decimal.Decimal `json:"amount"`
}

func (ClosePartialPosition) Kind() PayloadType { return PayloadClosePartialPosition }

// SwapToken requests a token swap
type SwapToken struct {
	FromSymbol          string          `json:"fromSymbol"`
	FromContractAddress string          `json:"fromContractAddress"`
	Amount              decimal.Decimal `json:"amount"`
	ToSymbol            string          `json:"toSymbol"`
	ToContractAddress   string          `json:"toContractAddress,omitempty"`
}

func (SwapToken) Kind() PayloadType { return PayloadSwapToken }

// PositionFulfilled reports a closed position and its result
type PositionFulfilled struct {
	Symbol          string          `json:"symbol"`
	Amount          decimal.Decimal `json:"amount"`
	ContractAddress string          `json:"contractAddress"`
	Type            string          `json:"type"`
	PnL             decimal.Decimal `json:"pnl"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	ExitPrice       decimal.Decimal `json:"exitPrice"`
}

func (PositionFulfilled) Kind() PayloadType { return PayloadPositionFulfilled }

// UnfulfilledPosition reports a position that could not be opened in full
type UnfulfilledPosition struct {
	Symbol          string          `json:"symbol"`
	Amount          decimal.Decimal `json:"amount"`
	ContractAddress string          `json:"contractAddress"`
	Type            string          `json:"type"`
	Reason          string          `json:"reason,omitempty"`
}

func (UnfulfilledPosition) Kind() PayloadType { return PayloadUnfulfilledPosition }

// CloseJobAndWithdraw asks the provider to wind the job down
type CloseJobAndWithdraw struct {
	Message string `json:"message"`
}

func (CloseJobAndWithdraw) Kind() PayloadType { return PayloadCloseJobAndWithdraw }

// Unknown keeps payloads of unrecognized or malformed type as raw JSON
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (u Unknown) Kind() PayloadType { return PayloadType(u.Type) }

var payloadFactories = map[PayloadType]func() Payload{
	PayloadFundResponse:         func() Payload { return &FundResponse{} },
	PayloadOpenPosition:         func() Payload { return &OpenPosition{} },
	PayloadClosePosition:        func() Payload { return &ClosePosition{} },
	PayloadClosePartialPosition: func() Payload { return &ClosePartialPosition{} },
	PayloadSwapToken:            func() Payload { return &SwapToken{} },
	PayloadPositionFulfilled:    func() Payload { return &PositionFulfilled{} },
	PayloadUnfulfilledPosition:  func() Payload { return &UnfulfilledPosition{} },
	PayloadCloseJobAndWithdraw:  func() Payload { return &CloseJobAndWithdraw{} },
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodePayloads decodes a {type, data} envelope. data may hold one object or a list.
// Unrecognized or malformed payloads come back as a single Unknown.
func DecodePayloads(raw json.RawMessage) []Payload {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		return []Payload{Unknown{Type: env.Type, Raw: raw}}
	}
	factory, ok := payloadFactories[PayloadType(env.Type)]
	if !ok {
		return []Payload{Unknown{Type: env.Type, Raw: raw}}
	}

	items := []json.RawMessage{env.Data}
	if trimmed := bytes.TrimSpace(env.Data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return []Payload{Unknown{Type: env.Type, Raw: raw}}
		}
	}

	payloads := make([]Payload, 0, len(items))
	for _, item := range items {
		p := factory()
		if err := json.Unmarshal(item, p); err != nil {
			return []Payload{Unknown{Type: env.Type, Raw: raw}}
		}
		payloads = append(payloads, deref(p))
	}
	return payloads
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *FundResponse:
		return *v
	case *OpenPosition:
		return *v
	case *ClosePosition:
		return *v
	case *ClosePartialPosition:
		return *v
	case *SwapToken:
		return *v
	case *PositionFulfilled:
		return *v
	case *UnfulfilledPosition:
		return *v
	case *CloseJobAndWithdraw:
		return *v
	}
	return p
}
