package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrentstream/resolver/internal/domain"
)

func TestParseEpisodes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []domain.EpisodeRef
		wantErr bool
	}{
		{name: "sxxexx", input: "S01E02", want: []domain.EpisodeRef{{Season: 1, Episode: 2}}},
		{name: "lowercase and x form", input: "s2e10, 3x4", want: []domain.EpisodeRef{{Season: 2, Episode: 10}, {Season: 3, Episode: 4}}},
		{name: "specials season", input: "S00E01", want: []domain.EpisodeRef{{Season: 0, Episode: 1}}},
		{name: "empty", input: "", want: nil},
		{name: "garbage", input: "S01", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEpisodes(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEpisodeRange(t *testing.T) {
	refs, err := episodeRange(2, 3, 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.EpisodeRef{{Season: 2, Episode: 3}, {Season: 2, Episode: 4}, {Season: 2, Episode: 5}}, refs)

	_, err = episodeRange(1, 5, 3)
	assert.Error(t, err)
	_, err = episodeRange(1, 0, 3)
	assert.Error(t, err)
}

func TestSearchCommand_PrintsTable(t *testing.T) {
	srv := newMockServer(t).
		ExpectPOST().
		ExpectPath("/api/streams").
		RespondJSON(domain.StreamSearchResponse{Streams: []domain.StreamCandidate{
			{URL: "https://hoster.example/a", Title: "The Matrix 1999 1080p", QualityLabel: "1080p", SizeLabel: "8.1 GB"},
		}}).
		Build()
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "search", "tt0133093")
	require.NoError(t, err)
	assert.Contains(t, out, "Streams (1)")
	assert.Contains(t, out, "1080p")
	assert.Contains(t, out, "8.1 GB")
}

func TestSearchCommand_RetryablePayload(t *testing.T) {
	srv := newMockServer(t).
		RespondJSON(domain.StreamSearchResponse{
			Streams:   []domain.StreamCandidate{},
			Error:     "upstream_unavailable",
			Message:   "The stream index is not responding.",
			Retryable: true,
		}).
		Build()
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "search", "tt0133093")
	require.NoError(t, err)
	assert.Contains(t, out, "Stream index unavailable")
	assert.Contains(t, out, "Try again")
}

func TestResolveCommand_Done(t *testing.T) {
	srv := newMockServer(t).
		ExpectPOST().
		ExpectPath("/api/resolve").
		RespondJSON(ResolveResponse{
			ResolutionView: domain.ResolutionView{
				RequestID:   "r1",
				Status:      "done",
				Source:      domain.SourceHosterLink,
				DownloadURL: "https://cdn.example/a.mkv",
			},
			Applied: true,
		}).
		Build()
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "resolve", "https://hoster.example/a")
	require.NoError(t, err)
	assert.Contains(t, out, "https://cdn.example/a.mkv")
	assert.Contains(t, out, "hosterLink")
}

func TestResolveCommand_FailedExitsWithError(t *testing.T) {
	srv := newMockServer(t).
		Handler(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"requestId":"r2","status":"failed","kind":"no_magnet_hash","message":"no info hash in link"}`))
		}).
		Build()
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "resolve", "https://index.example/resolve/x")
	require.Error(t, err)
	assert.Contains(t, out, "no_magnet_hash")
}

func TestBatchStatusCommand(t *testing.T) {
	srv := newMockServer(t).
		ExpectGET().
		ExpectPath("/api/batches/b1").
		RespondJSON(domain.Batch{
			ID:     "b1",
			ImdbID: "tt0903747",
			State:  domain.BatchStateRunning,
			Items: []domain.BatchQueueItem{
				{Season: 1, Episode: 1, Status: domain.BatchReady, DownloadURL: "https://cdn.example/1.mkv"},
				{Season: 1, Episode: 2, Status: domain.BatchError, Error: "no streams found"},
				{Season: 1, Episode: 3, Status: domain.BatchPending},
			},
			CreatedAt: time.Now(),
		}).
		Build()
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "batch", "status", "b1")
	require.NoError(t, err)
	assert.Contains(t, out, "S01E01")
	assert.Contains(t, out, "https://cdn.example/1.mkv")
	assert.Contains(t, out, "no streams found")
	assert.Contains(t, out, "pending")
}

func TestTorrentsCommand_Empty(t *testing.T) {
	srv := newMockServer(t).
		ExpectGET().
		ExpectPath("/api/debrid/torrents").
		RespondJSON(TorrentsResponse{Torrents: []domain.TorrentJob{}}).
		Build()
	defer srv.Close()

	out, err := runCommand(t, srv.URL, "torrents")
	require.NoError(t, err)
	assert.Contains(t, out, "No torrents")
}
