package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"acp-node/core/models"
)

// EventQueue accepts job events for asynchronous handling
type EventQueue interface {
	Enqueue(event *models.JobEvent)
}

// EventHandler receives push notifications about jobs
type EventHandler struct {
	queue  EventQueue
	logger *slog.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(queue EventQueue, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{queue: queue, logger: logger}
}

// NewTaskRequest is the body of a new-task notification
type NewTaskRequest struct {
	Job        *models.JobWire `json:"job"`
	MemoToSign *uint64         `json:"memoToSign,omitempty"`
}

// EvaluateRequest is the body of an evaluation notification
type EvaluateRequest struct {
	Job *models.JobWire `json:"job"`
}

// EventAccepted is returned once an event is queued
type EventAccepted struct {
	ID    string           `json:"id"`
	Type  models.EventType `json:"type"`
	JobID uint64           `json:"jobId"`
}

// NewTask handles POST /v1/events/new-task
func (h *EventHandler) NewTask(w http.ResponseWriter, r *http.Request) {
	var req NewTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Job == nil {
		http.Error(w, "job is required", http.StatusBadRequest)
		return
	}
	h.enqueue(w, &models.JobEvent{Type: models.EventNewTask, Job: *req.Job, MemoToSign: req.MemoToSign})
}

// Evaluate handles POST /v1/events/evaluate
func (h *EventHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Job == nil {
		http.Error(w, "job is required", http.StatusBadRequest)
		return
	}
	h.enqueue(w, &models.JobEvent{Type: models.EventEvaluate, Job: *req.Job})
}

func (h *EventHandler) enqueue(w http.ResponseWriter, event *models.JobEvent) {
	event.ID = uuid.NewString()
	h.queue.Enqueue(event)
	h.logger.Debug("event queued", "event_id", event.ID, "type", event.Type, "job_id", event.Job.ID)

	writeJSON(w, http.StatusAccepted, EventAccepted{ID: event.ID, Type: event.Type, JobID: event.Job.ID})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
