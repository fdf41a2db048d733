package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"acp-node/core/models"
)

const source = "backend"

// Config for the backend REST client
type Config struct {
	BaseURL string
	// RequestsPerSecond bounds outgoing calls; zero disables limiting
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client reads job and memo snapshots and registers X402 nonces
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a backend client
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: limiter,
	}, nil
}

type envelope[T any] struct {
	Data T `json:"data"`
}

// GetJob fetches the current snapshot of a job
func (c *Client) GetJob(ctx context.Context, jobID uint64) (*models.JobWire, error) {
	var out envelope[*models.JobWire]
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d", jobID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get job %d: %w", jobID, err)
	}
	if out.Data == nil {
		return nil, &models.ProtocolError{Source: source, Status: http.StatusOK, Body: "empty job data"}
	}
	return out.Data, nil
}

// GetMemo fetches one memo of a job
func (c *Client) GetMemo(ctx context.Context, jobID, memoID uint64) (*models.MemoWire, error) {
	var out envelope[*models.MemoWire]
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d/memos/%d", jobID, memoID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get memo %d of job %d: %w", memoID, jobID, err)
	}
	if out.Data == nil {
		return nil, &models.ProtocolError{Source: source, Status: http.StatusOK, Body: "empty memo data"}
	}
	return out.Data, nil
}

type nonceBody struct {
	Nonce string `json:"nonce"`
}

// RegisterX402Nonce records the authorization nonce used to pay a job budget
func (c *Client) RegisterX402Nonce(ctx context.Context, jobID uint64, nonce string) error {
	body := envelope[nonceBody]{Data: nonceBody{Nonce: nonce}}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/x402-nonce", jobID), body, nil); err != nil {
		return fmt.Errorf("failed to register x402 nonce for job %d: %w", jobID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &models.ProtocolError{Source: source, Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &models.ProtocolError{Source: source, Status: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
