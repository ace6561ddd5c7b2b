package apihttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"torrentstream/resolver/internal/domain"
)

func (s *Server) debridReady(w http.ResponseWriter) bool {
	if s.debrid == nil || !s.debrid.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "debrid_not_configured", "debrid api key is not configured")
		return false
	}
	return true
}

// handleDebridAccount is display-only and bounded by its own short timeout.
func (s *Server) handleDebridAccount(w http.ResponseWriter, r *http.Request) {
	if !s.debridReady(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.accountTimeout)
	defer cancel()

	account, err := s.debrid.AccountStatus(ctx)
	if err != nil {
		s.logger.Warn("debrid account lookup failed", slog.String("error", err.Error()))
		kind := domain.ClassifyFailure(err)
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) || kind.Retryable() {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, string(kind), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleDebridTorrents serves a snapshot; failures are logged and reported as an empty list.
func (s *Server) handleDebridTorrents(w http.ResponseWriter, r *http.Request) {
	if !s.debridReady(w) {
		return
	}
	torrents, err := s.debrid.ListTorrents(r.Context())
	if err != nil {
		s.logger.Warn("debrid torrent list failed", slog.String("error", err.Error()))
		torrents = []domain.TorrentJob{}
	}
	if torrents == nil {
		torrents = []domain.TorrentJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"torrents": torrents})
}

func (s *Server) handleDebridDownloads(w http.ResponseWriter, r *http.Request) {
	if !s.debridReady(w) {
		return
	}
	downloads, err := s.debrid.ListDownloads(r.Context())
	if err != nil {
		s.logger.Warn("debrid download list failed", slog.String("error", err.Error()))
		downloads = []domain.Download{}
	}
	if downloads == nil {
		downloads = []domain.Download{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloads": downloads})
}
