package x402

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"acp-node/core/models"
)

const (
	headerBudget  = "x-budget"
	headerPayment = "x-payment"
	budgetPath    = "/acp-budget"
)

// Extra carries the EIP-712 domain of the payment asset
type Extra struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Requirement is one payment option offered by the facilitator
type Requirement struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Asset             string `json:"asset"`
	PayTo             string `json:"payTo"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	MaxTimeoutSeconds int64  `json:"maxTimeoutSeconds"`
	Resource          string `json:"resource,omitempty"`
	Description       string `json:"description,omitempty"`
	Extra             *Extra `json:"extra,omitempty"`
}

// PaymentRequired is the 402 response body
type PaymentRequired struct {
	X402Version int           `json:"x402Version"`
	Accepts     []Requirement `json:"accepts"`
	Error       string        `json:"error,omitempty"`
}

// BudgetResponse is the outcome of a budget request
type BudgetResponse struct {
	// Paid is true on 200
	Paid     bool
	Required *PaymentRequired
}

// Facilitator talks to the payment-required budget endpoint
type Facilitator struct {
	baseURL string
	client  *http.Client
}

// NewFacilitator creates a facilitator client for baseURL
func NewFacilitator(baseURL string, client *http.Client) *Facilitator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Facilitator{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// RequestBudget asks for the budget, attaching payment when non-empty
func (f *Facilitator) RequestBudget(ctx context.Context, budget, payment string) (*BudgetResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+budgetPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build budget request: %w", err)
	}
	req.Header.Set(headerBudget, budget)
	if payment != "" {
		req.Header.Set(headerPayment, payment)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request budget: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read budget response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &BudgetResponse{Paid: true}, nil
	case http.StatusPaymentRequired:
		var required PaymentRequired
		if err := json.Unmarshal(body, &required); err != nil {
			return nil, &models.ProtocolError{Source: "x402", Status: resp.StatusCode, Body: string(body)}
		}
		return &BudgetResponse{Required: &required}, nil
	default:
		return nil, &models.ProtocolError{Source: "x402", Status: resp.StatusCode, Body: string(body)}
	}
}
