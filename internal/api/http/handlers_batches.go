package apihttp

import (
	"errors"
	"net/http"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/session"
)

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "batch queue is not configured")
		return
	}
	var spec domain.BatchSpec
	if err := decodeJSONBody(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	batch, err := s.batches.Start(spec)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, batch)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil {
		writeError(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	batch, ok := s.batches.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	if s.batches == nil {
		writeError(w, http.StatusNotFound, "not_found", "batch not found")
		return
	}
	id := r.PathValue("id")
	if err := s.batches.Cancel(id); err != nil {
		if errors.Is(err, session.ErrBatchNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "batch not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	batch, _ := s.batches.Get(id)
	writeJSON(w, http.StatusAccepted, batch)
}
