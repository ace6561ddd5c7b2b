// Package streamindex queries a Stremio-addon style stream index and exposes
// the results through a validated, rate-limited proxy service.
package streamindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/metrics"
	"torrentstream/resolver/internal/redact"
	"torrentstream/resolver/internal/retry"
)

const (
	DefaultBaseURL   = "https://torrentio.strem.fun"
	maxResponseBytes = 8 << 20
	upstreamLabel    = "stream_index"
)

var (
	// ErrUpstreamUnavailable means every endpoint variant failed; callers may retry later.
	ErrUpstreamUnavailable = errors.New("stream index unavailable")

	errVariantRejected = errors.New("variant rejected")
)

type Config struct {
	BaseURL string

	// Options is the addon configuration path segment, e.g. "sort=qualitysize|qualityfilter=cam".
	Options   string
	DebridKey string
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger
	Retry     retry.Config
	Redactor  *redact.Redactor
}

type Client struct {
	baseURL   string
	options   string
	debridKey string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
	retry     retry.Config
	redactor  *redact.Redactor
}

type variant struct {
	name string
	base string
}

type streamsResponse struct {
	Streams []wireStream `json:"streams"`
}

type wireStream struct {
	Name          string        `json:"name"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	URL           string        `json:"url"`
	InfoHash      string        `json:"infoHash"`
	FileIdx       *int          `json:"fileIdx"`
	BehaviorHints behaviorHints `json:"behaviorHints"`
}

type behaviorHints struct {
	BingeGroup string `json:"bingeGroup"`
	Filename   string `json:"filename"`
	VideoSize  int64  `json:"videoSize"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}
	redactor := cfg.Redactor
	if redactor == nil {
		redactor = redact.New(cfg.DebridKey)
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		options:   strings.Trim(strings.TrimSpace(cfg.Options), "/"),
		debridKey: strings.TrimSpace(cfg.DebridKey),
		userAgent: strings.TrimSpace(cfg.UserAgent),
		http:      httpClient,
		logger:    logger.With(slog.String("component", "stream-index")),
		retry:     retryCfg,
		redactor:  redactor,
	}
}

// variants lists endpoint flavors in the order they are tried: the
// debrid-authenticated addon path first, then the anonymous one.
func (c *Client) variants() []variant {
	var out []variant
	if c.debridKey != "" {
		segment := "realdebrid=" + c.debridKey
		if c.options != "" {
			segment = c.options + "|" + segment
		}
		out = append(out, variant{name: "authenticated", base: c.baseURL + "/" + segment})
	}
	anonymous := c.baseURL
	if c.options != "" {
		anonymous += "/" + c.options
	}
	return append(out, variant{name: "anonymous", base: anonymous})
}

// Streams returns candidates in the order the index ranked them. A 404 from
// the index is an empty result. ErrUpstreamUnavailable is returned once all
// variants are exhausted.
func (c *Client) Streams(ctx context.Context, req domain.StreamSearchRequest) ([]domain.StreamCandidate, error) {
	path := "/stream/" + url.PathEscape(string(req.Type)) + "/" + url.PathEscape(streamID(req)) + ".json"

	var lastErr error
	for _, v := range c.variants() {
		var (
			wire     []wireStream
			notFound bool
		)
		err := retry.Do(ctx, c.retryConfig(v.name), func() error {
			var fetchErr error
			wire, notFound, fetchErr = c.fetch(ctx, v, v.base+path)
			return fetchErr
		})
		if err == nil {
			if notFound {
				return []domain.StreamCandidate{}, nil
			}
			return c.candidates(wire), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
		c.logger.Warn("stream index variant failed",
			slog.String("variant", v.name),
			slog.String("error", c.redactor.String(err.Error())),
		)
	}
	return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, c.redactor.String(lastErr.Error()))
}

func (c *Client) retryConfig(variantName string) retry.Config {
	cfg := c.retry
	cfg.OnRetry = func(next int, delay time.Duration, err error) {
		c.logger.Debug("stream index retry",
			slog.String("variant", variantName),
			slog.Int("attempt", next),
			slog.Duration("delay", delay),
			slog.String("error", c.redactor.String(err.Error())),
		)
	}
	return cfg
}

func (c *Client) fetch(ctx context.Context, v variant, endpoint string) ([]wireStream, bool, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: build request", errVariantRejected)
	}
	request.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		request.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(request)
	metrics.UpstreamRequestDuration.WithLabelValues(upstreamLabel, v.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamLabel, v.name, "network_error").Inc()
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequestsTotal.WithLabelValues(upstreamLabel, v.name, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, true, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, false, fmt.Errorf("%w: stream index HTTP %d", domain.ErrTransient, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, false, fmt.Errorf("%w: stream index HTTP %d", errVariantRejected, resp.StatusCode)
	}

	var payload streamsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("%w: decode stream index response: %v", domain.ErrTransient, err)
	}
	return payload.Streams, false, nil
}

func (c *Client) candidates(wire []wireStream) []domain.StreamCandidate {
	out := make([]domain.StreamCandidate, 0, len(wire))
	for _, stream := range wire {
		candidate, ok := toCandidate(stream)
		if !ok {
			continue
		}
		candidate.URL = c.redactor.String(candidate.URL)
		candidate.Title = c.redactor.String(candidate.Title)
		out = append(out, candidate)
	}
	return out
}

func streamID(req domain.StreamSearchRequest) string {
	if req.Type == domain.MediaSeries {
		return fmt.Sprintf("%s:%d:%d", req.ImdbID, req.Season, req.Episode)
	}
	return req.ImdbID
}
