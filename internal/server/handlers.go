package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/raphaelgruber/deepresearch/internal/service"
	"github.com/raphaelgruber/deepresearch/internal/store"
)

type submitRequest struct {
	Query string `json:"query"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.research.Submit(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, service.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: job.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.research.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown job id")
			return
		}
		s.logger.Error("status lookup failed", "job_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	result, err := s.research.GetResults(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown job id")
		case errors.Is(err, store.ErrNotReady):
			writeError(w, http.StatusConflict, "job is not completed")
		default:
			s.logger.Error("results lookup failed", "job_id", r.PathValue("id"), "error", err)
			writeError(w, http.StatusInternalServerError, "lookup failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.research.ListJobs(r.Context())
	if err != nil {
		s.logger.Error("list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

type statsResponse struct {
	Jobs       store.Stats `json:"jobs"`
	Operations any         `json:"operations"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.research.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}

	resp := statsResponse{Jobs: stats}
	if s.metrics != nil {
		resp.Operations = s.metrics.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
