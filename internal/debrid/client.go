// Package debrid talks to a Real-Debrid compatible REST API: unrestricting
// hoster links, submitting magnets and following their conversion into
// ready downloads.
package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/metrics"
	"torrentstream/resolver/internal/retry"
	"torrentstream/resolver/internal/source"
)

const (
	DefaultBaseURL      = "https://api.real-debrid.com/rest/1.0"
	DefaultPollInterval = 2 * time.Second
	DefaultWaitTimeout  = 5 * time.Minute
	defaultListLimit    = 100
	maxResponseBytes    = 4 << 20
	upstreamLabel       = "debrid"
)

type Config struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Client    *http.Client
	Logger    *slog.Logger

	// RequestsPerSecond throttles every outbound call. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	Retry             retry.Config
	PollInterval      time.Duration
	WaitTimeout       time.Duration
}

// DefaultRetry retries transient failures after 1s, 2s and 4s.
func DefaultRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  4,
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2,
	}
}

type Client struct {
	baseURL      string
	apiKey       string
	userAgent    string
	http         *http.Client
	logger       *slog.Logger
	limiter      *rate.Limiter
	retry        retry.Config
	pollInterval time.Duration
	waitTimeout  time.Duration
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
		retryCfg = DefaultRetry()
	}
	retryCfg.Retryable = isRetryable
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	waitTimeout := cfg.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		userAgent:    strings.TrimSpace(cfg.UserAgent),
		http:         httpClient,
		logger:       logger.With(slog.String("component", "debrid")),
		limiter:      limiter,
		retry:        retryCfg,
		pollInterval: pollInterval,
		waitTimeout:  waitTimeout,
	}
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// UnrestrictLink converts a hoster link into a direct download link.
// A hoster the service does not support yields domain.ErrHosterUnsupported.
func (c *Client) UnrestrictLink(ctx context.Context, link string) (Unrestricted, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Unrestricted{}, fmt.Errorf("%w: empty link", domain.ErrValidation)
	}
	var resp unrestrictResponse
	err := c.withRetry(ctx, "unrestrict_link", func() error {
		return c.call(ctx, "unrestrict_link", http.MethodPost, "/unrestrict/link", url.Values{"link": {link}}, &resp)
	})
	if err != nil {
		return Unrestricted{}, err
	}
	if strings.TrimSpace(resp.Download) == "" {
		return Unrestricted{}, fmt.Errorf("%w: unrestrict returned no download", domain.ErrTransient)
	}
	return Unrestricted{
		Download: resp.Download,
		Filename: resp.Filename,
		Filesize: resp.Filesize,
		MimeType: resp.MimeType,
	}, nil
}

// AddMagnet submits a magnet and selects all of its files when the service
// asks for a selection. The submission is not idempotent: after an ambiguous
// transient failure the torrent list is checked for the same info hash before
// another submission is attempted.
func (c *Client) AddMagnet(ctx context.Context, magnet string) (domain.TorrentJob, error) {
	magnet = strings.TrimSpace(magnet)
	if magnet == "" {
		return domain.TorrentJob{}, fmt.Errorf("%w: empty magnet", domain.ErrValidation)
	}
	hash, hasHash := source.MagnetInfoHash(magnet)

	var added addMagnetResponse
	attempted := false
	submit := func() error {
		if attempted && hasHash {
			if existing, ok := c.findTorrentByHash(ctx, hash); ok {
				c.logger.Info("adopting torrent submitted by a failed attempt",
					slog.String("torrentId", existing.ID),
					slog.String("hash", hash),
				)
				added.ID = existing.ID
				return nil
			}
		}
		attempted = true
		return c.call(ctx, "add_magnet", http.MethodPost, "/torrents/addMagnet", url.Values{"magnet": {magnet}}, &added)
	}

	var err error
	if hasHash {
		err = c.withRetry(ctx, "add_magnet", submit)
	} else {
		err = submit()
	}
	if err != nil {
		return domain.TorrentJob{}, err
	}
	if strings.TrimSpace(added.ID) == "" {
		return domain.TorrentJob{}, fmt.Errorf("%w: add magnet returned no id", domain.ErrTorrentError)
	}

	job, err := c.PollTorrentStatus(ctx, added.ID)
	if err != nil {
		return domain.TorrentJob{ID: added.ID}, err
	}
	if job.Status == domain.TorrentWaitingFiles {
		if err := c.SelectAllFiles(ctx, job.ID); err != nil {
			return job, err
		}
		return c.PollTorrentStatus(ctx, job.ID)
	}
	return job, nil
}

// SelectAllFiles marks every file of the torrent for download.
func (c *Client) SelectAllFiles(ctx context.Context, id string) error {
	path := "/torrents/selectFiles/" + url.PathEscape(id)
	return c.withRetry(ctx, "select_files", func() error {
		return c.call(ctx, "select_files", http.MethodPost, path, url.Values{"files": {"all"}}, nil)
	})
}

// PollTorrentStatus fetches the current state of a torrent job once.
func (c *Client) PollTorrentStatus(ctx context.Context, id string) (domain.TorrentJob, error) {
	var info torrentInfo
	path := "/torrents/info/" + url.PathEscape(id)
	err := c.withRetry(ctx, "torrent_info", func() error {
		return c.call(ctx, "torrent_info", http.MethodGet, path, nil, &info)
	})
	if err != nil {
		return domain.TorrentJob{ID: id}, err
	}
	if info.ID == "" {
		info.ID = id
	}
	return info.job(), nil
}

// ListTorrents returns the account's torrents, newest first. Callers that
// only display the list should treat an error as an empty list.
func (c *Client) ListTorrents(ctx context.Context) ([]domain.TorrentJob, error) {
	var items []torrentInfo
	query := "/torrents?limit=" + strconv.Itoa(defaultListLimit)
	err := c.withRetry(ctx, "list_torrents", func() error {
		return c.call(ctx, "list_torrents", http.MethodGet, query, nil, &items)
	})
	if err != nil {
		return []domain.TorrentJob{}, err
	}
	out := make([]domain.TorrentJob, 0, len(items))
	for _, item := range items {
		out = append(out, item.job())
	}
	return out, nil
}

// ListDownloads returns previously unrestricted links.
func (c *Client) ListDownloads(ctx context.Context) ([]domain.Download, error) {
	var items []downloadItem
	query := "/downloads?limit=" + strconv.Itoa(defaultListLimit)
	err := c.withRetry(ctx, "list_downloads", func() error {
		return c.call(ctx, "list_downloads", http.MethodGet, query, nil, &items)
	})
	if err != nil {
		return []domain.Download{}, err
	}
	out := make([]domain.Download, 0, len(items))
	for _, item := range items {
		out = append(out, item.download())
	}
	return out, nil
}

func (c *Client) AccountStatus(ctx context.Context) (domain.AccountStatus, error) {
	var user userInfo
	err := c.withRetry(ctx, "account", func() error {
		return c.call(ctx, "account", http.MethodGet, "/user", nil, &user)
	})
	if err != nil {
		return domain.AccountStatus{}, err
	}
	return user.account(), nil
}

func (c *Client) findTorrentByHash(ctx context.Context, hash string) (domain.TorrentJob, bool) {
	torrents, err := c.ListTorrents(ctx)
	if err != nil {
		c.logger.Warn("torrent list unavailable for duplicate check", slog.String("error", err.Error()))
		return domain.TorrentJob{}, false
	}
	for _, torrent := range torrents {
		if strings.EqualFold(torrent.Hash, hash) {
			return torrent, true
		}
	}
	return domain.TorrentJob{}, false
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	cfg := c.retry
	cfg.OnRetry = func(next int, delay time.Duration, err error) {
		c.logger.Warn("debrid call failed, retrying",
			slog.String("operation", op),
			slog.Int("attempt", next),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	}
	return retry.Do(ctx, cfg, fn)
}

// call performs one HTTP exchange. form is sent url-encoded for POST requests.
func (c *Client) call(ctx context.Context, op, method, path string, form url.Values, out any) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(upstreamLabel, op).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues(upstreamLabel, op, string(domain.FailureCanceled)).Inc()
			return ctxErr
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamLabel, op, string(domain.FailureTransient)).Inc()
		return fmt.Errorf("%w: %s: %v", domain.ErrTransient, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamLabel, op, string(domain.FailureTransient)).Inc()
		return fmt.Errorf("%w: read %s response: %v", domain.ErrTransient, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, payload)
		metrics.UpstreamRequestsTotal.WithLabelValues(upstreamLabel, op, string(domain.ClassifyFailure(apiErr))).Inc()
		c.logger.Debug("debrid call rejected",
			slog.String("operation", op),
			slog.Int("status", resp.StatusCode),
			slog.String("token", apiErr.Token),
		)
		return apiErr
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(upstreamLabel, op, "ok").Inc()

	if out == nil || resp.StatusCode == http.StatusNoContent || len(strings.TrimSpace(string(payload))) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
