package apihttp

import (
	"log/slog"
	"net/http"
	"strings"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history_disabled", "resolution history is not configured")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	mediaID := strings.TrimSpace(r.URL.Query().Get("mediaId"))
	attempts, err := s.history.List(r.Context(), mediaID, limit)
	if err != nil {
		s.logger.Error("history lookup failed", slog.String("mediaId", mediaID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}
