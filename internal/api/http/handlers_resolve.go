package apihttp

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"torrentstream/resolver/internal/domain"
)

type resolveRequest struct {
	URL     string `json:"url"`
	MediaID string `json:"mediaId,omitempty"`
	Title   string `json:"title,omitempty"`
}

type resolveResponse struct {
	domain.ResolutionView

	// Applied is false when a newer resolution for the same media replaced this one.
	Applied bool `json:"applied"`
}

func newRequestID() string {
	return uuid.NewString()
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.resolver == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "resolver is not configured")
		return
	}
	var body resolveRequest
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}

	req := domain.ResolutionRequest{
		ID:           s.newID(),
		CandidateURL: body.URL,
		MediaID:      strings.TrimSpace(body.MediaID),
		Title:        strings.TrimSpace(body.Title),
	}
	ctx, complete := s.beginSession(r.Context(), req)

	if parseOptionalBool(r.URL.Query().Get("stream")) {
		s.streamResolution(ctx, w, req, complete)
		return
	}

	result := s.resolver.Resolve(ctx, req)
	applied := complete(result)
	view := result.View()
	writeJSON(w, statusForResult(view), resolveResponse{ResolutionView: view, Applied: applied})
}

// beginSession registers the resolution with the session store when the
// request names a media. The returned function writes the result back.
func (s *Server) beginSession(parent context.Context, req domain.ResolutionRequest) (context.Context, func(domain.ResolutionResult) bool) {
	if s.sessions == nil || req.MediaID == "" {
		return parent, func(domain.ResolutionResult) bool { return true }
	}
	candidate := domain.StreamCandidate{URL: req.CandidateURL, Title: req.Title}
	ticket, ctx := s.sessions.Begin(parent, req.MediaID, req.ID, candidate)
	return ctx, func(result domain.ResolutionResult) bool {
		return s.sessions.Complete(ticket, result)
	}
}

func (s *Server) streamResolution(ctx context.Context, w http.ResponseWriter, req domain.ResolutionRequest, complete func(domain.ResolutionResult) bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming is not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientGone := false
	for event := range s.resolver.ResolveStream(ctx, req) {
		if !event.Final {
			if !clientGone && writeSSEEvent(w, flusher, "progress", event) != nil {
				clientGone = true
			}
			continue
		}
		applied := complete(domain.ResolutionResult{
			RequestID: event.RequestID,
			MediaID:   event.MediaID,
			Outcome:   event.Outcome,
		})
		if !clientGone && event.Result != nil {
			_ = writeSSEEvent(w, flusher, "done", resolveResponse{ResolutionView: *event.Result, Applied: applied})
		}
	}
}

func statusForResult(view domain.ResolutionView) int {
	if view.Status == "done" {
		return http.StatusOK
	}
	switch view.Kind {
	case domain.FailureValidation:
		return http.StatusBadRequest
	case domain.FailureAuth:
		return http.StatusBadGateway
	case domain.FailureTransient, domain.FailureRateLimited, domain.FailureTorrentTimeout:
		return http.StatusServiceUnavailable
	case domain.FailureCanceled:
		return http.StatusConflict
	case domain.FailureUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "not_found", "media not found")
		return
	}
	entry, ok := s.sessions.Get(r.PathValue("mediaId"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "media not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil || !s.sessions.Forget(r.PathValue("mediaId")) {
		writeError(w, http.StatusNotFound, "not_found", "media not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
