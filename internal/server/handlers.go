package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"prcast/internal/logging"
	"prcast/internal/queue"
	"prcast/internal/services"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	health, err := s.health.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := viewFromHealth(health)
	status := http.StatusOK
	if !payload.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stages := make(map[string]int, len(stats))
	for stage, count := range stats {
		stages[string(stage)] = count
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Total:    summary.Total,
		Waiting:  summary.Waiting,
		InFlight: summary.InFlight,
		Retrying: summary.Retrying,
		Done:     summary.Done,
		Failed:   summary.Failed,
		Stages:   stages,
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var stages []queue.Stage
	for _, value := range r.URL.Query()["stage"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		stage, ok := queue.ParseStage(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown stage "+trimmed)
			return
		}
		stages = append(stages, stage)
	}

	jobs, err := s.store.ListByStage(r.Context(), stages...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	items := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, viewFromJob(job))
	}
	s.writeJSON(w, http.StatusOK, QueueListResponse{Items: items})
}

func (s *Server) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	if id, ok := strings.CutSuffix(rest, "/retry"); ok {
		s.handleQueueRetry(w, r, id)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, err := s.store.GetByID(r.Context(), rest)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, QueueItemResponse{Item: viewFromJob(job)})
}

func (s *Server) handleQueueRetry(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	result, err := s.intake.Resubmit(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, QueueItemResponse{Item: viewFromJob(result.Job)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
