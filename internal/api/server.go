// Package api exposes the HTTP surface: liveness, metrics, and queue
// introspection.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
	"github.com/daechan-jo/auto-store-services-onch/internal/queue"
)

// Server wires HTTP handlers to the queue.
type Server struct {
	router chi.Router
	queue  *queue.Queue
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(q *queue.Queue, logger *zap.Logger) *Server {
	s := &Server{queue: q, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/queue", func(r chi.Router) {
		r.Get("/status", s.queueStatus)
		r.Get("/jobs", s.listJobs)
		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Delete("/", s.removeJob)
			r.Post("/retry", s.retryJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// healthz reports process liveness, independent of job processing health.
func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) queueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Counts())
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	state := onch.JobState(r.URL.Query().Get("state"))
	if state == "" {
		state = onch.JobStateWaiting
	}
	limit := 50
	jobs := s.queue.ListByState(state, limit)
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	job, ok := s.queue.Job(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) removeJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if !s.queue.Remove(id) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if err := s.queue.Retry(r.Context(), id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"retried": id})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, onch.Response{Status: onch.StatusError, Message: message})
}
