package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/session"
)

// Client wraps HTTP calls to the resolver server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a resolver API client. Streaming calls are not bounded by
// the client timeout; cancel their context instead.
func NewClient(serverURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// APIError is a non-success answer from the server.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter int
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server error %d", e.Status)
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %ds)", e.RetryAfter)
	}
	return msg
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope errorEnvelope
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		apiErr.RetryAfter = seconds
	}
	return apiErr
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, accept ...int) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !statusAccepted(resp.StatusCode, accept) {
		return apiError(resp)
	}
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func statusAccepted(status int, accept []int) bool {
	if len(accept) == 0 {
		return status == http.StatusOK
	}
	for _, code := range accept {
		if code == status {
			return true
		}
	}
	return false
}

// API request and response types

type SearchRequest struct {
	Action  string `json:"action"`
	ImdbID  string `json:"imdbId"`
	Type    string `json:"type"`
	Season  *int   `json:"season,omitempty"`
	Episode *int   `json:"episode,omitempty"`
	MediaID string `json:"mediaId,omitempty"`
}

type ResolveRequest struct {
	URL     string `json:"url"`
	MediaID string `json:"mediaId,omitempty"`
	Title   string `json:"title,omitempty"`
}

type ResolveResponse struct {
	domain.ResolutionView
	Applied bool `json:"applied"`
}

type TorrentsResponse struct {
	Torrents []domain.TorrentJob `json:"torrents"`
}

type DownloadsResponse struct {
	Downloads []domain.Download `json:"downloads"`
}

type HistoryResponse struct {
	Attempts []domain.ResolutionAttempt `json:"attempts"`
}

// Search asks the stream index proxy for candidates.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*domain.StreamSearchResponse, error) {
	if req.Action == "" {
		req.Action = "search"
	}
	var resp domain.StreamSearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/streams", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resolve waits for one resolution. Failed resolutions come back as a
// response with status "failed", not as an error.
func (c *Client) Resolve(ctx context.Context, req ResolveRequest) (*ResolveResponse, error) {
	var resp ResolveResponse
	err := c.do(ctx, http.MethodPost, "/api/resolve", req, &resp,
		http.StatusOK,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusConflict,
		http.StatusUnprocessableEntity,
		http.StatusInternalServerError,
	)
	if err != nil {
		return nil, err
	}
	if resp.Status == "" {
		return nil, errors.New("server returned an empty resolution")
	}
	return &resp, nil
}

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Name string
	Data []byte
}

// ResolveWatch streams resolution progress. onEvent sees every event; the
// final "done" event is also decoded and returned.
func (c *Client) ResolveWatch(ctx context.Context, req ResolveRequest, onEvent func(SSEEvent)) (*ResolveResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/resolve?stream=1", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("request creation failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	streaming := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streaming.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var final *ResolveResponse
	err = readSSE(resp.Body, func(event SSEEvent) error {
		if onEvent != nil {
			onEvent(event)
		}
		if event.Name != "done" {
			return nil
		}
		var decoded ResolveResponse
		if err := json.Unmarshal(event.Data, &decoded); err != nil {
			return fmt.Errorf("decode final event: %w", err)
		}
		final = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if final == nil {
		return nil, errors.New("stream ended before the resolution finished")
	}
	return final, nil
}

func readSSE(r io.Reader, handle func(SSEEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	var current SSEEvent
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 || current.Name != "" {
				current.Data = append([]byte(nil), data.Bytes()...)
				if err := handle(current); err != nil {
					return err
				}
			}
			current = SSEEvent{}
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			current.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

func (c *Client) Account(ctx context.Context) (*domain.AccountStatus, error) {
	var resp domain.AccountStatus
	if err := c.do(ctx, http.MethodGet, "/api/debrid/account", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Torrents(ctx context.Context) ([]domain.TorrentJob, error) {
	var resp TorrentsResponse
	if err := c.do(ctx, http.MethodGet, "/api/debrid/torrents", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Torrents, nil
}

func (c *Client) Downloads(ctx context.Context) ([]domain.Download, error) {
	var resp DownloadsResponse
	if err := c.do(ctx, http.MethodGet, "/api/debrid/downloads", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Downloads, nil
}

func (c *Client) StartBatch(ctx context.Context, spec domain.BatchSpec) (*domain.Batch, error) {
	var resp domain.Batch
	if err := c.do(ctx, http.MethodPost, "/api/batches", spec, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Batch(ctx context.Context, id string) (*domain.Batch, error) {
	var resp domain.Batch
	if err := c.do(ctx, http.MethodGet, "/api/batches/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CancelBatch(ctx context.Context, id string) (*domain.Batch, error) {
	var resp domain.Batch
	if err := c.do(ctx, http.MethodDelete, "/api/batches/"+url.PathEscape(id), nil, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Media(ctx context.Context, mediaID string) (*session.Entry, error) {
	var resp session.Entry
	if err := c.do(ctx, http.MethodGet, "/api/media/"+url.PathEscape(mediaID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ForgetMedia(ctx context.Context, mediaID string) error {
	return c.do(ctx, http.MethodDelete, "/api/media/"+url.PathEscape(mediaID), nil, nil, http.StatusNoContent)
}

func (c *Client) History(ctx context.Context, mediaID string, limit int) ([]domain.ResolutionAttempt, error) {
	query := url.Values{}
	if mediaID != "" {
		query.Set("mediaId", mediaID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/history"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attempts, nil
}
