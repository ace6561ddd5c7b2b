package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"torrentstream/resolver/internal/domain"
)

type fakeSearcher struct {
	mu       sync.Mutex
	results  map[string]domain.StreamSearchResponse
	errs     map[string]error
	searches []domain.StreamSearchRequest
	active   int
	maxSeen  int
	gate     chan struct{}
}

func episodeKey(season, episode int) string {
	return fmt.Sprintf("%d:%d", season, episode)
}

func (f *fakeSearcher) SearchStreams(ctx context.Context, search domain.StreamSearchRequest) (domain.StreamSearchResponse, error) {
	f.mu.Lock()
	f.searches = append(f.searches, search)
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	gate := f.gate
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.StreamSearchResponse{}, ctx.Err()
		}
	}
	key := episodeKey(search.Season, search.Episode)
	if err := f.errs[key]; err != nil {
		return domain.StreamSearchResponse{}, err
	}
	return f.results[key], nil
}

type fakeResolver struct {
	mu    sync.Mutex
	links map[string]string
	calls []domain.ResolutionRequest
}

func (f *fakeResolver) Resolve(_ context.Context, req domain.ResolutionRequest) domain.ResolutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if link, ok := f.links[req.CandidateURL]; ok {
		return domain.ResolutionResult{RequestID: "r", Outcome: domain.Done{DownloadURL: link}}
	}
	return domain.ResolutionResult{RequestID: "r", Outcome: domain.Failed{Kind: domain.FailureTorrentDead, Err: domain.ErrTorrentDead}}
}

func waitBatch(t *testing.T, q *BatchQueue, id string) domain.Batch {
	t.Helper()
	q.mu.Lock()
	run := q.batches[id]
	q.mu.Unlock()
	select {
	case <-run.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("batch %s did not finish", id)
	}
	batch, _ := q.Get(id)
	return batch
}

func streams(urls ...string) domain.StreamSearchResponse {
	resp := domain.StreamSearchResponse{Streams: []domain.StreamCandidate{}}
	for _, u := range urls {
		resp.Streams = append(resp.Streams, domain.StreamCandidate{URL: u, Title: "title " + u})
	}
	return resp
}

func TestBatchResolvesEpisodesInOrder(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string]domain.StreamSearchResponse{
			episodeKey(1, 1): streams("https://h/1", "https://h/1b"),
			episodeKey(1, 2): streams("https://h/2"),
			episodeKey(1, 3): streams(),
			episodeKey(1, 4): {Streams: []domain.StreamCandidate{}, Error: "upstream_unavailable", Message: "index down", Retryable: true},
		},
		errs: map[string]error{},
	}
	resolver := &fakeResolver{links: map[string]string{"https://h/1": "https://cdn/1.mkv"}}
	q := NewBatchQueue(context.Background(), searcher, resolver, nil)

	batch, err := q.Start(domain.BatchSpec{
		ImdbID:  "tt0903747",
		MediaID: "show-1",
		Resolve: true,
		Episodes: []domain.EpisodeRef{
			{Season: 1, Episode: 1}, {Season: 1, Episode: 2}, {Season: 1, Episode: 3}, {Season: 1, Episode: 4},
		},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, item := range batch.Items {
		if item.Status != domain.BatchPending {
			t.Fatalf("new batch items must be pending: %+v", item)
		}
	}

	final := waitBatch(t, q, batch.ID)
	if final.State != domain.BatchStateCompleted {
		t.Fatalf("unexpected state %q", final.State)
	}
	want := []domain.BatchItemStatus{domain.BatchReady, domain.BatchError, domain.BatchError, domain.BatchError}
	for i, item := range final.Items {
		if item.Status != want[i] {
			t.Fatalf("item %d status %q, want %q (%+v)", i, item.Status, want[i], item)
		}
	}
	if final.Items[0].DownloadURL != "https://cdn/1.mkv" || final.Items[0].Stream.URL != "https://h/1" {
		t.Fatalf("top candidate should be resolved: %+v", final.Items[0])
	}
	if final.Items[1].Stream == nil || final.Items[1].Error == "" {
		t.Fatalf("failed resolution keeps the picked stream and an error: %+v", final.Items[1])
	}
	if final.Items[2].Error != errNoStreams {
		t.Fatalf("unexpected error %q", final.Items[2].Error)
	}
	if final.Items[3].Error != "index down" {
		t.Fatalf("retryable upstream payload should surface its message, got %q", final.Items[3].Error)
	}

	for i, search := range searcher.searches {
		if search.Episode != i+1 || search.Type != domain.MediaSeries || search.ImdbID != "tt0903747" {
			t.Fatalf("search %d out of order: %+v", i, search)
		}
	}
	if searcher.maxSeen != 1 {
		t.Fatalf("episodes must be processed serially, saw %d concurrent searches", searcher.maxSeen)
	}
	if len(resolver.calls) != 2 || resolver.calls[0].MediaID != "show-1" {
		t.Fatalf("unexpected resolver calls: %+v", resolver.calls)
	}
}

func TestBatchWithoutResolvePicksStreams(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string]domain.StreamSearchResponse{episodeKey(2, 5): streams("https://h/top", "https://h/next")},
		errs:    map[string]error{},
	}
	q := NewBatchQueue(context.Background(), searcher, nil, nil)
	batch, err := q.Start(domain.BatchSpec{ImdbID: "tt0903747", Episodes: []domain.EpisodeRef{{Season: 2, Episode: 5}}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	final := waitBatch(t, q, batch.ID)
	item := final.Items[0]
	if item.Status != domain.BatchReady || item.Stream.URL != "https://h/top" || item.DownloadURL != "" {
		t.Fatalf("unexpected item %+v", item)
	}
}

func TestBatchStartValidation(t *testing.T) {
	q := NewBatchQueue(context.Background(), &fakeSearcher{}, nil, nil)
	tests := []struct {
		name string
		spec domain.BatchSpec
	}{
		{"no episodes", domain.BatchSpec{ImdbID: "tt0903747"}},
		{"bad imdb id", domain.BatchSpec{ImdbID: "0903747", Episodes: []domain.EpisodeRef{{Season: 1, Episode: 1}}}},
		{"episode zero", domain.BatchSpec{ImdbID: "tt0903747", Episodes: []domain.EpisodeRef{{Season: 1, Episode: 0}}}},
		{"resolve without resolver", domain.BatchSpec{ImdbID: "tt0903747", Resolve: true, Episodes: []domain.EpisodeRef{{Season: 1, Episode: 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := q.Start(tt.spec); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestBatchCancelLeavesRemainingItemsPending(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string]domain.StreamSearchResponse{},
		errs:    map[string]error{},
		gate:    make(chan struct{}),
	}
	q := NewBatchQueue(context.Background(), searcher, nil, nil)
	batch, err := q.Start(domain.BatchSpec{
		ImdbID:   "tt0903747",
		Episodes: []domain.EpisodeRef{{Season: 1, Episode: 1}, {Season: 1, Episode: 2}},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		current, _ := q.Get(batch.ID)
		if current.Items[0].Status == domain.BatchSearching {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := q.Cancel(batch.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	final := waitBatch(t, q, batch.ID)
	if final.State != domain.BatchStateCanceled {
		t.Fatalf("unexpected state %q", final.State)
	}
	for _, item := range final.Items {
		if item.Status != domain.BatchPending {
			t.Fatalf("cancelled items must stay pending: %+v", item)
		}
	}
	if err := q.Cancel("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestOnlyOneBatchRunsAtATime(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string]domain.StreamSearchResponse{episodeKey(1, 1): streams("https://h/1")},
		errs:    map[string]error{},
		gate:    make(chan struct{}),
	}
	q := NewBatchQueue(context.Background(), searcher, nil, nil)
	spec := domain.BatchSpec{ImdbID: "tt0903747", Episodes: []domain.EpisodeRef{{Season: 1, Episode: 1}}}
	first, _ := q.Start(spec)
	second, _ := q.Start(spec)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		a, _ := q.Get(first.ID)
		b, _ := q.Get(second.ID)
		if a.State == domain.BatchStateRunning || b.State == domain.BatchStateRunning {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	a, _ := q.Get(first.ID)
	b, _ := q.Get(second.ID)
	running := 0
	for _, state := range []domain.BatchState{a.State, b.State} {
		if state == domain.BatchStateRunning {
			running++
		}
	}
	if running != 1 {
		t.Fatalf("exactly one batch may run, states %q and %q", a.State, b.State)
	}

	close(searcher.gate)
	if waitBatch(t, q, first.ID).State != domain.BatchStateCompleted || waitBatch(t, q, second.ID).State != domain.BatchStateCompleted {
		t.Fatalf("both batches should complete once released")
	}
	if searcher.maxSeen != 1 {
		t.Fatalf("batches overlapped: %d concurrent searches", searcher.maxSeen)
	}
}
