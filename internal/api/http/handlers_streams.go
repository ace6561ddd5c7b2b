package apihttp

import (
	"errors"
	"log/slog"
	"net/http"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/streamindex"
)

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "stream search is not configured")
		return
	}
	var req streamindex.ProxyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	response, err := s.streams.Search(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case r.Context().Err() != nil:
			// Client went away.
		default:
			s.logger.Warn("stream search failed",
				slog.String("imdbId", req.ImdbID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		}
		return
	}

	if req.MediaID != "" && s.sessions != nil && response.Error == "" {
		s.sessions.SetCandidates(req.MediaID, response.Streams)
	}
	writeJSON(w, http.StatusOK, response)
}
