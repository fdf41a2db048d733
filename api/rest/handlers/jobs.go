package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"acp-node/core/agent"
	"acp-node/core/fare"
	"acp-node/core/job"
	"acp-node/core/models"
)

// JobService is the agent-side view of jobs
type JobService interface {
	GetJob(ctx context.Context, jobID uint64) (*job.Job, error)
	InitiateJob(ctx context.Context, p agent.InitiateParams) (uint64, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	jobs     JobService
	baseFare fare.Fare
}

// NewJobHandler creates a new job handler. Budgets are denominated in baseFare.
func NewJobHandler(jobs JobService, baseFare fare.Fare) *JobHandler {
	return &JobHandler{jobs: jobs, baseFare: baseFare}
}

// InitiateJobRequest represents the request to open a job with a provider
type InitiateJobRequest struct {
	Provider    common.Address   `json:"provider"`
	Evaluator   common.Address   `json:"evaluator"`
	ServiceName string           `json:"serviceName"`
	Requirement json.RawMessage  `json:"requirement,omitempty"`
	Budget      float64          `json:"budget"`
	PriceType   models.PriceType `json:"priceType,omitempty"`
	PriceValue  float64          `json:"priceValue,omitempty"`
	ExpiredAt   *time.Time       `json:"expiredAt,omitempty"`
	Metadata    string           `json:"metadata,omitempty"`
}

// InitiateJobResponse represents the response after opening a job
type InitiateJobResponse struct {
	ID uint64 `json:"id"`
}

// InitiateJob handles POST /v1/jobs
func (h *JobHandler) InitiateJob(w http.ResponseWriter, r *http.Request) {
	var req InitiateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Budget < 0 {
		http.Error(w, "budget must not be negative", http.StatusBadRequest)
		return
	}

	params := agent.InitiateParams{
		Provider:    req.Provider,
		Evaluator:   req.Evaluator,
		ServiceName: req.ServiceName,
		Budget:      fare.NewFareAmount(req.Budget, h.baseFare),
		PriceType:   req.PriceType,
		PriceValue:  req.PriceValue,
		Metadata:    req.Metadata,
	}
	if len(req.Requirement) > 0 {
		params.Requirement = req.Requirement
	}
	if req.ExpiredAt != nil {
		params.ExpiredAt = *req.ExpiredAt
	}

	id, err := h.jobs.InitiateJob(r.Context(), params)
	if err != nil {
		http.Error(w, "Failed to initiate job: "+err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusCreated, InitiateJobResponse{ID: id})
}

// MemoView is the JSON rendering of a memo
type MemoView struct {
	ID        uint64            `json:"id"`
	Type      string            `json:"type"`
	NextPhase string            `json:"nextPhase"`
	Status    models.MemoStatus `json:"status"`
	Sender    common.Address    `json:"sender"`
	Content   string            `json:"content"`
	Expiry    *time.Time        `json:"expiry,omitempty"`
}

// JobView is the JSON rendering of a job
type JobView struct {
	ID          uint64          `json:"id"`
	Phase       string          `json:"phase"`
	Client      common.Address  `json:"client"`
	Provider    common.Address  `json:"provider"`
	Evaluator   common.Address  `json:"evaluator"`
	Price       float64         `json:"price"`
	PriceToken  common.Address  `json:"priceToken"`
	ServiceName string          `json:"serviceName,omitempty"`
	Requirement json.RawMessage `json:"requirement,omitempty"`
	Deliverable string          `json:"deliverable,omitempty"`
	X402        bool            `json:"x402"`
	Memos       []MemoView      `json:"memos"`
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	j, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		http.Error(w, "Failed to get job: "+err.Error(), statusFor(err))
		return
	}

	view := JobView{
		ID:          j.ID,
		Phase:       j.Phase.String(),
		Client:      j.ClientAddress,
		Provider:    j.ProviderAddress,
		Evaluator:   j.EvaluatorAddress,
		Price:       j.Price,
		PriceToken:  j.PriceTokenAddress,
		ServiceName: j.Name,
		Requirement: j.Requirement,
		X402:        j.X402.IsX402,
		Memos:       make([]MemoView, 0, len(j.Memos)),
	}
	if deliverable, ok := j.Deliverable(); ok {
		view.Deliverable = deliverable
	}
	for _, m := range j.Memos {
		view.Memos = append(view.Memos, MemoView{
			ID:        m.ID,
			Type:      m.Type.String(),
			NextPhase: m.NextPhase.String(),
			Status:    m.Status,
			Sender:    m.Sender,
			Content:   m.Content,
			Expiry:    m.Expiry,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func statusFor(err error) int {
	var perr *models.ProtocolError
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.As(err, &perr) && perr.Status == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
