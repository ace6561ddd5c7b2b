package streamindex

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/metrics"
)

const (
	ActionSearch         = "search"
	defaultCacheTTL      = 10 * time.Minute
	defaultSearchTimeout = 90 * time.Second
)

var imdbIDPattern = regexp.MustCompile(`^tt\d{7,10}$`)

// ProxyRequest is the body accepted by the stream proxy endpoint.
type ProxyRequest struct {
	Action  string `json:"action"`
	ImdbID  string `json:"imdbId"`
	Type    string `json:"type"`
	Season  *int   `json:"season,omitempty"`
	Episode *int   `json:"episode,omitempty"`
	MediaID string `json:"mediaId,omitempty"`
}

// Validate checks the request before any upstream call and returns the
// normalized search. Errors wrap domain.ErrValidation.
func (r ProxyRequest) Validate() (domain.StreamSearchRequest, error) {
	if strings.TrimSpace(r.Action) != ActionSearch {
		return domain.StreamSearchRequest{}, fmt.Errorf("%w: unsupported action %q", domain.ErrValidation, r.Action)
	}
	imdbID := strings.TrimSpace(r.ImdbID)
	if !imdbIDPattern.MatchString(imdbID) {
		return domain.StreamSearchRequest{}, fmt.Errorf("%w: imdbId must look like tt1234567", domain.ErrValidation)
	}
	search := domain.StreamSearchRequest{ImdbID: imdbID, Type: domain.MediaType(strings.ToLower(strings.TrimSpace(r.Type)))}
	switch search.Type {
	case domain.MediaMovie:
		return search, nil
	case domain.MediaSeries:
	default:
		return domain.StreamSearchRequest{}, fmt.Errorf("%w: type must be movie or series", domain.ErrValidation)
	}
	if r.Season == nil || r.Episode == nil {
		return domain.StreamSearchRequest{}, fmt.Errorf("%w: season and episode are required for series", domain.ErrValidation)
	}
	if *r.Season < 0 || *r.Episode < 1 {
		return domain.StreamSearchRequest{}, fmt.Errorf("%w: season must be >= 0 and episode >= 1", domain.ErrValidation)
	}
	search.Season = *r.Season
	search.Episode = *r.Episode
	return search, nil
}

// Upstream is the raw stream index.
type Upstream interface {
	Streams(ctx context.Context, req domain.StreamSearchRequest) ([]domain.StreamCandidate, error)
}

type Service struct {
	upstream Upstream
	cache    Cache
	cacheTTL      time.Duration
	searchTimeout time.Duration
	group         singleflight.Group
	logger        *slog.Logger
}

type ServiceOption func(*Service)

func WithCache(cache Cache) ServiceOption {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithSearchTimeout bounds one shared upstream search, independent of the
// callers waiting on it.
func WithSearchTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.searchTimeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(upstream Upstream, options ...ServiceOption) *Service {
	s := &Service{
		upstream:      upstream,
		cacheTTL:      defaultCacheTTL,
		searchTimeout: defaultSearchTimeout,
		logger:        slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	s.logger = s.logger.With(slog.String("component", "stream-proxy"))
	return s
}

// Search validates the request and queries the index. Exhausted upstream
// failures produce a retryable response rather than an error, so callers can
// keep the UI alive. Validation problems and caller cancellation are errors.
func (s *Service) Search(ctx context.Context, req ProxyRequest) (domain.StreamSearchResponse, error) {
	search, err := req.Validate()
	if err != nil {
		return domain.StreamSearchResponse{}, err
	}
	return s.SearchStreams(ctx, search)
}

// SearchStreams is Search for an already validated request.
func (s *Service) SearchStreams(ctx context.Context, search domain.StreamSearchRequest) (domain.StreamSearchResponse, error) {
	key := cacheKey(search)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	// The shared call outlives any single caller; each caller stops waiting
	// when its own context ends.
	flight := s.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.searchTimeout)
		defer cancel()
		streams, err := s.upstream.Streams(callCtx, search)
		if err != nil {
			return nil, err
		}
		response := domain.StreamSearchResponse{Streams: streams}
		if len(streams) > 0 && s.cache != nil {
			if err := s.cache.Set(callCtx, key, response, s.cacheTTL); err != nil {
				s.logger.Warn("stream cache write failed", slog.String("error", err.Error()))
			}
		}
		return response, nil
	})

	var result singleflight.Result
	select {
	case <-ctx.Done():
		return domain.StreamSearchResponse{}, ctx.Err()
	case result = <-flight:
	}
	if result.Err != nil {
		s.logger.Warn("stream search failed",
			slog.String("imdbId", search.ImdbID),
			slog.String("type", string(search.Type)),
			slog.Bool("shared", result.Shared),
			slog.String("error", result.Err.Error()),
		)
		return domain.StreamSearchResponse{
			Streams:   []domain.StreamCandidate{},
			Error:     "upstream_unavailable",
			Message:   "The stream index is not responding. Try again in a moment.",
			Retryable: true,
		}, nil
	}
	return result.Val.(domain.StreamSearchResponse), nil
}

func (s *Service) cached(ctx context.Context, key string) (domain.StreamSearchResponse, bool) {
	if s.cache == nil {
		return domain.StreamSearchResponse{}, false
	}
	response, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("stream cache read failed", slog.String("error", err.Error()))
		return domain.StreamSearchResponse{}, false
	}
	if !ok {
		metrics.SearchCacheMissesTotal.Inc()
		return domain.StreamSearchResponse{}, false
	}
	metrics.SearchCacheHitsTotal.Inc()
	return response, true
}

func cacheKey(search domain.StreamSearchRequest) string {
	if search.Type == domain.MediaSeries {
		return fmt.Sprintf("%s:%s:%d:%d", search.Type, search.ImdbID, search.Season, search.Episode)
	}
	return fmt.Sprintf("%s:%s", search.Type, search.ImdbID)
}
