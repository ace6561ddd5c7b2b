package streamindex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/retry"
)

const testKey = "RDKEY1234567890"

type upstreamLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *upstreamLog) add(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
}

func (l *upstreamLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func newIndexClient(t *testing.T, handler http.HandlerFunc) (*Client, *upstreamLog) {
	t.Helper()
	log := &upstreamLog{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Path)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	client := NewClient(Config{
		BaseURL:   server.URL,
		Options:   "sort=qualitysize",
		DebridKey: testKey,
		Client:    server.Client(),
		Retry:     retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
	})
	return client, log
}

func writeStreams(w http.ResponseWriter, streams []map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"streams": streams})
}

func TestStreamsUsesAuthenticatedVariantAndRedactsKey(t *testing.T) {
	client, log := newIndexClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeStreams(w, []map[string]any{
			{
				"name":  "[RD+] Torrentio\n4k",
				"title": "Movie.2020.2160p.WEB-DL.x265\n👤 42 💾 12.3 GB ⚙️ ThePirateBay",
				"url":   "https://torrentio.strem.fun/resolve/realdebrid/" + testKey + "/0123456789abcdef0123456789abcdef01234567/null/0/Movie.mkv",
			},
			{
				"name":     "[RD download] Torrentio\n1080p",
				"title":    "Movie.2020.1080p.BluRay.x264\n👤 7 💾 2.1 GB",
				"infoHash": "0123456789ABCDEF0123456789ABCDEF01234567",
			},
		})
	})

	streams, err := client.Streams(context.Background(), domain.StreamSearchRequest{ImdbID: "tt1234567", Type: domain.MediaMovie})
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	paths := log.snapshot()
	if len(paths) != 1 || !strings.Contains(paths[0], "realdebrid="+testKey) || !strings.HasSuffix(paths[0], "/stream/movie/tt1234567.json") {
		t.Fatalf("unexpected upstream paths: %v", paths)
	}
	if len(streams) != 2 {
		t.Fatalf("expected 2 streams, got %d", len(streams))
	}
	first := streams[0]
	if strings.Contains(first.URL, testKey) {
		t.Fatalf("key leaked in URL: %s", first.URL)
	}
	if !strings.Contains(first.URL, "/REDACTED/") {
		t.Fatalf("expected redaction placeholder: %s", first.URL)
	}
	if !first.IsDirectLink || first.SizeLabel != "12.3 GB" || first.QualityLabel == "" {
		t.Fatalf("unexpected first candidate: %+v", first)
	}
	second := streams[1]
	if second.URL != "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=Movie.2020.1080p.BluRay.x264" {
		t.Fatalf("unexpected magnet: %s", second.URL)
	}
	if second.IsDirectLink {
		t.Fatalf("uncached stream must not be marked direct")
	}
}

func TestStreamsSeriesPath(t *testing.T) {
	client, log := newIndexClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeStreams(w, nil)
	})
	_, err := client.Streams(context.Background(), domain.StreamSearchRequest{ImdbID: "tt7654321", Type: domain.MediaSeries, Season: 2, Episode: 5})
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	paths := log.snapshot()
	if len(paths) != 1 || !strings.HasSuffix(paths[0], "/stream/series/tt7654321:2:5.json") {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestStreamsNotFoundIsEmpty(t *testing.T) {
	client, log := newIndexClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	streams, err := client.Streams(context.Background(), domain.StreamSearchRequest{ImdbID: "tt1234567", Type: domain.MediaMovie})
	if err != nil {
		t.Fatalf("404 must not be an error: %v", err)
	}
	if streams == nil || len(streams) != 0 {
		t.Fatalf("expected empty result, got %v", streams)
	}
	if got := len(log.snapshot()); got != 1 {
		t.Fatalf("404 must not be retried, got %d calls", got)
	}
}

func TestStreamsFallsBackToAnonymousVariant(t *testing.T) {
	client, log := newIndexClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "realdebrid=") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeStreams(w, []map[string]any{{"name": "Torrentio\n720p", "title": "Movie 720p", "infoHash": "0123456789abcdef0123456789abcdef01234567"}})
	})
	streams, err := client.Streams(context.Background(), domain.StreamSearchRequest{ImdbID: "tt1234567", Type: domain.MediaMovie})
	if err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected anonymous result, got %v", streams)
	}
	paths := log.snapshot()
	if len(paths) != 4 {
		t.Fatalf("expected 3 authenticated attempts and 1 anonymous, got %v", paths)
	}
	if strings.Contains(paths[3], "realdebrid=") {
		t.Fatalf("last attempt should be anonymous: %s", paths[3])
	}
}

func TestStreamsExhaustedReturnsUnavailable(t *testing.T) {
	client, log := newIndexClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := client.Streams(context.Background(), domain.StreamSearchRequest{ImdbID: "tt1234567", Type: domain.MediaMovie})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if strings.Contains(err.Error(), testKey) {
		t.Fatalf("key leaked in error: %v", err)
	}
	if got := len(log.snapshot()); got != 6 {
		t.Fatalf("expected 6 upstream calls, got %d", got)
	}
}

func TestStreamsWithoutKeyOnlyAnonymous(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeStreams(w, nil)
	}))
	defer server.Close()
	client := NewClient(Config{BaseURL: server.URL, Client: server.Client()})
	if _, err := client.Streams(context.Background(), domain.StreamSearchRequest{ImdbID: "tt1234567", Type: domain.MediaMovie}); err != nil {
		t.Fatalf("Streams: %v", err)
	}
	if len(paths) != 1 || paths[0] != "/stream/movie/tt1234567.json" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}
