package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/ratelimit"
	"torrentstream/resolver/internal/session"
	"torrentstream/resolver/internal/streamindex"
)

type StreamSearcher interface {
	Search(ctx context.Context, req streamindex.ProxyRequest) (domain.StreamSearchResponse, error)
}

type Resolver interface {
	Resolve(ctx context.Context, req domain.ResolutionRequest) domain.ResolutionResult
	ResolveStream(ctx context.Context, req domain.ResolutionRequest) <-chan domain.ResolutionEvent
}

type BatchService interface {
	Start(spec domain.BatchSpec) (domain.Batch, error)
	Get(id string) (domain.Batch, bool)
	Cancel(id string) error
}

type DebridAccount interface {
	Enabled() bool
	AccountStatus(ctx context.Context) (domain.AccountStatus, error)
	ListTorrents(ctx context.Context) ([]domain.TorrentJob, error)
	ListDownloads(ctx context.Context) ([]domain.Download, error)
}

type HistoryStore interface {
	List(ctx context.Context, mediaID string, limit int) ([]domain.ResolutionAttempt, error)
}

type Server struct {
	streams        StreamSearcher
	resolver       Resolver
	sessions       *session.Store
	batches        BatchService
	debrid         DebridAccount
	history        HistoryStore
	hub            *Hub
	limiter        *ratelimit.Limiter
	allowedOrigins []string
	trustedProxies []string
	accountTimeout time.Duration
	newID          func() string
	logger         *slog.Logger
	handler        http.Handler
}

const defaultAccountTimeout = 5 * time.Second

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithSessions(store *session.Store) ServerOption {
	return func(s *Server) {
		s.sessions = store
	}
}

func WithBatches(batches BatchService) ServerOption {
	return func(s *Server) {
		s.batches = batches
	}
}

func WithDebrid(debrid DebridAccount) ServerOption {
	return func(s *Server) {
		s.debrid = debrid
	}
}

func WithHistory(history HistoryStore) ServerOption {
	return func(s *Server) {
		s.history = history
	}
}

// WithHub serves /ws from hub. The same hub is usually the engine's publisher.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithRateLimiter caps /api/streams requests per client IP.
func WithRateLimiter(limiter *ratelimit.Limiter) ServerOption {
	return func(s *Server) {
		s.limiter = limiter
	}
}

// WithAllowedOrigins configures the CORS allow list. Empty allows any origin.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithTrustedProxies lists the CIDRs or addresses of reverse proxies whose
// forwarding headers name the real client. Without it the rate limit keys on
// the connection address.
func WithTrustedProxies(proxies []string) ServerOption {
	return func(s *Server) {
		s.trustedProxies = proxies
	}
}

func WithIDGenerator(newID func() string) ServerOption {
	return func(s *Server) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func NewServer(streams StreamSearcher, resolver Resolver, options ...ServerOption) *Server {
	s := &Server{
		streams:        streams,
		resolver:       resolver,
		accountTimeout: defaultAccountTimeout,
		newID:          newRequestID,
		logger:         slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	trust, invalid := parseProxyTrust(s.trustedProxies)
	for _, entry := range invalid {
		s.logger.Warn("ignoring invalid trusted proxy", slog.String("entry", entry))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/streams", s.handleStreams)
	mux.HandleFunc("POST /api/resolve", s.handleResolve)
	mux.HandleFunc("GET /api/media/{mediaId}", s.handleGetMedia)
	mux.HandleFunc("DELETE /api/media/{mediaId}", s.handleDeleteMedia)
	mux.HandleFunc("POST /api/batches", s.handleStartBatch)
	mux.HandleFunc("GET /api/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("DELETE /api/batches/{id}", s.handleCancelBatch)
	mux.HandleFunc("GET /api/debrid/account", s.handleDebridAccount)
	mux.HandleFunc("GET /api/debrid/torrents", s.handleDebridTorrents)
	mux.HandleFunc("GET /api/debrid/downloads", s.handleDebridDownloads)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, trust, mux), "resolver",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && p != "/ws"
		}),
	)
	limited := clientRateLimit(s.limiter, trust, []string{"/api/streams"}, traced)
	s.handler = recoveryMiddleware(s.logger, trust, metricsMiddleware(corsMiddleware(s.allowedOrigins, limited)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	if s.hub != nil {
		s.hub.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	debridState := "disabled"
	if s.debrid != nil && s.debrid.Enabled() {
		debridState = "configured"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"debrid":    debridState,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "websocket not available")
		return
	}
	if err := s.hub.serve(w, r); err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
