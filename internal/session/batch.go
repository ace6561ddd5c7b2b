package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/metrics"
	"torrentstream/resolver/internal/streamindex"
)

const (
	maxBatchEpisodes      = 200
	defaultBatchRetention = time.Hour
	errNoStreams          = "no streams found"
)

var ErrBatchNotFound = errors.New("batch not found")

// Searcher finds candidates for one episode.
type Searcher interface {
	SearchStreams(ctx context.Context, search domain.StreamSearchRequest) (domain.StreamSearchResponse, error)
}

// Resolver turns a picked candidate into a playable link.
type Resolver interface {
	Resolve(ctx context.Context, req domain.ResolutionRequest) domain.ResolutionResult
}

type batchRun struct {
	batch  domain.Batch
	cancel context.CancelFunc
	done   chan struct{}
}

// BatchQueue resolves the episodes of a series one after another. Only one
// batch runs per process; later batches wait their turn in the queued state.
type BatchQueue struct {
	ctx       context.Context
	searcher  Searcher
	resolver  Resolver
	logger    *slog.Logger
	running   *semaphore.Weighted
	retention time.Duration
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	batches map[string]*batchRun
}

// NewBatchQueue creates a queue whose batches stop when ctx is done.
// A nil resolver limits batches to picking streams.
func NewBatchQueue(ctx context.Context, searcher Searcher, resolver Resolver, logger *slog.Logger) *BatchQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchQueue{
		ctx:       ctx,
		searcher:  searcher,
		resolver:  resolver,
		logger:    logger.With(slog.String("component", "batch")),
		running:   semaphore.NewWeighted(1),
		retention: defaultBatchRetention,
		now:       time.Now,
		newID:     uuid.NewString,
		batches:   make(map[string]*batchRun),
	}
}

// Start validates the episodes and queues the batch. The returned snapshot
// has every item pending.
func (q *BatchQueue) Start(spec domain.BatchSpec) (domain.Batch, error) {
	if len(spec.Episodes) == 0 {
		return domain.Batch{}, fmt.Errorf("%w: episodes are required", domain.ErrValidation)
	}
	if len(spec.Episodes) > maxBatchEpisodes {
		return domain.Batch{}, fmt.Errorf("%w: at most %d episodes per batch", domain.ErrValidation, maxBatchEpisodes)
	}
	if spec.Resolve && q.resolver == nil {
		return domain.Batch{}, fmt.Errorf("%w: resolution is not available", domain.ErrValidation)
	}
	items := make([]domain.BatchQueueItem, 0, len(spec.Episodes))
	for _, ref := range spec.Episodes {
		if _, err := episodeSearch(spec.ImdbID, ref); err != nil {
			return domain.Batch{}, err
		}
		items = append(items, domain.BatchQueueItem{Season: ref.Season, Episode: ref.Episode, Status: domain.BatchPending})
	}

	now := q.now()
	ctx, cancel := context.WithCancel(q.ctx)
	run := &batchRun{
		batch: domain.Batch{
			ID:        q.newID(),
			ImdbID:    spec.ImdbID,
			MediaID:   spec.MediaID,
			State:     domain.BatchStateQueued,
			Resolve:   spec.Resolve,
			Items:     items,
			CreatedAt: now,
			UpdatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	q.mu.Lock()
	q.pruneLocked(now)
	q.batches[run.batch.ID] = run
	snapshot := copyBatch(run.batch)
	q.mu.Unlock()

	q.logger.Info("batch queued",
		slog.String("batchId", run.batch.ID),
		slog.String("imdbId", spec.ImdbID),
		slog.Int("episodes", len(items)),
		slog.Bool("resolve", spec.Resolve),
	)
	go q.process(ctx, run)
	return snapshot, nil
}

func (q *BatchQueue) Get(id string) (domain.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	run, ok := q.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return copyBatch(run.batch), true
}

// Cancel stops a queued or running batch. Items not reached stay pending.
func (q *BatchQueue) Cancel(id string) error {
	q.mu.Lock()
	run, ok := q.batches[id]
	q.mu.Unlock()
	if !ok {
		return ErrBatchNotFound
	}
	run.cancel()
	return nil
}

func (q *BatchQueue) process(ctx context.Context, run *batchRun) {
	defer close(run.done)
	defer run.cancel()
	id := run.batch.ID

	if err := q.running.Acquire(ctx, 1); err != nil {
		q.setState(run, domain.BatchStateCanceled)
		return
	}
	defer q.running.Release(1)
	q.setState(run, domain.BatchStateRunning)

	for i := range run.batch.Items {
		if ctx.Err() != nil {
			break
		}
		q.processItem(ctx, run, i)
	}

	state := domain.BatchStateCompleted
	if ctx.Err() != nil {
		state = domain.BatchStateCanceled
	}
	q.setState(run, state)
	q.logger.Info("batch finished", slog.String("batchId", id), slog.String("state", string(state)))
}

func (q *BatchQueue) processItem(ctx context.Context, run *batchRun, index int) {
	q.mu.Lock()
	item := run.batch.Items[index]
	q.mu.Unlock()

	q.updateItem(run, index, func(item *domain.BatchQueueItem) {
		item.Status = domain.BatchSearching
	})

	search, err := episodeSearch(run.batch.ImdbID, domain.EpisodeRef{Season: item.Season, Episode: item.Episode})
	if err != nil {
		q.failItem(ctx, run, index, err.Error())
		return
	}
	resp, err := q.searcher.SearchStreams(ctx, search)
	switch {
	case err != nil:
		q.failItem(ctx, run, index, err.Error())
		return
	case resp.Error != "":
		message := resp.Message
		if message == "" {
			message = resp.Error
		}
		q.failItem(ctx, run, index, message)
		return
	case len(resp.Streams) == 0:
		q.failItem(ctx, run, index, errNoStreams)
		return
	}

	top := resp.Streams[0]
	if !run.batch.Resolve {
		q.readyItem(run, index, top, "")
		return
	}

	result := q.resolver.Resolve(ctx, domain.ResolutionRequest{
		CandidateURL: top.URL,
		MediaID:      run.batch.MediaID,
		Title:        top.Title,
	})
	if link, ok := result.URL(); ok {
		q.readyItem(run, index, top, link)
		return
	}
	view := result.View()
	q.updateItem(run, index, func(item *domain.BatchQueueItem) {
		item.Stream = &top
	})
	q.failItem(ctx, run, index, fmt.Sprintf("%s: %s", view.Kind, view.Message))
}

func (q *BatchQueue) readyItem(run *batchRun, index int, stream domain.StreamCandidate, link string) {
	q.updateItem(run, index, func(item *domain.BatchQueueItem) {
		item.Stream = &stream
		item.DownloadURL = link
		item.Status = domain.BatchReady
		item.Error = ""
	})
	metrics.BatchItemsTotal.WithLabelValues(string(domain.BatchReady)).Inc()
}

// failItem returns the item to pending when the batch itself was cancelled.
func (q *BatchQueue) failItem(ctx context.Context, run *batchRun, index int, message string) {
	if ctx.Err() != nil {
		q.updateItem(run, index, func(item *domain.BatchQueueItem) {
			item.Status = domain.BatchPending
		})
		return
	}
	q.updateItem(run, index, func(item *domain.BatchQueueItem) {
		item.Status = domain.BatchError
		item.Error = message
	})
	metrics.BatchItemsTotal.WithLabelValues(string(domain.BatchError)).Inc()
	q.logger.Warn("batch item failed",
		slog.String("batchId", run.batch.ID),
		slog.Int("season", run.batch.Items[index].Season),
		slog.Int("episode", run.batch.Items[index].Episode),
		slog.String("error", message),
	)
}

func (q *BatchQueue) updateItem(run *batchRun, index int, mutate func(*domain.BatchQueueItem)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mutate(&run.batch.Items[index])
	run.batch.UpdatedAt = q.now()
}

func (q *BatchQueue) setState(run *batchRun, state domain.BatchState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	run.batch.State = state
	run.batch.UpdatedAt = q.now()
}

// pruneLocked drops finished batches older than the retention period.
func (q *BatchQueue) pruneLocked(now time.Time) {
	for id, run := range q.batches {
		finished := run.batch.State == domain.BatchStateCompleted || run.batch.State == domain.BatchStateCanceled
		if finished && now.Sub(run.batch.UpdatedAt) > q.retention {
			delete(q.batches, id)
		}
	}
}

func episodeSearch(imdbID string, ref domain.EpisodeRef) (domain.StreamSearchRequest, error) {
	season, episode := ref.Season, ref.Episode
	return streamindex.ProxyRequest{
		Action:  streamindex.ActionSearch,
		ImdbID:  imdbID,
		Type:    string(domain.MediaSeries),
		Season:  &season,
		Episode: &episode,
	}.Validate()
}

func copyBatch(batch domain.Batch) domain.Batch {
	out := batch
	out.Items = make([]domain.BatchQueueItem, len(batch.Items))
	for i, item := range batch.Items {
		if item.Stream != nil {
			stream := *item.Stream
			item.Stream = &stream
		}
		out.Items[i] = item
	}
	return out
}
