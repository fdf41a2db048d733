package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"acp-node/api/rest/handlers"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, events *handlers.EventHandler, jobs *handlers.JobHandler, gatherer prometheus.Gatherer) {
	api := r.PathPrefix("/v1").Subrouter()

	// Push intake
	api.HandleFunc("/events/new-task", events.NewTask).Methods("POST")
	api.HandleFunc("/events/evaluate", events.Evaluate).Methods("POST")

	// Job endpoints
	api.HandleFunc("/jobs", jobs.InitiateJob).Methods("POST")
	api.HandleFunc("/jobs/{id}", jobs.GetJob).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
}
