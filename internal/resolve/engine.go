// Package resolve turns a stream candidate into a playable link. A run walks a
// fixed state machine: classify the reference, then unrestrict it, or submit
// its magnet and wait for the torrent, then unrestrict the first link.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"torrentstream/resolver/internal/debrid"
	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/metrics"
	"torrentstream/resolver/internal/source"
	"torrentstream/resolver/internal/telemetry"
)

const (
	defaultRecordTimeout = 3 * time.Second
	streamBuffer         = 16
)

// Gateway is the part of the debrid client the engine drives.
type Gateway interface {
	UnrestrictLink(ctx context.Context, link string) (debrid.Unrestricted, error)
	AddMagnetAndWait(ctx context.Context, magnet string, onProgress debrid.ProgressFunc) (domain.TorrentJob, error)
}

type Classifier interface {
	Classify(ref string) domain.SourceKind
}

// Publisher fans resolution events out to passive listeners.
type Publisher interface {
	Publish(event domain.ResolutionEvent)
}

// AttemptRecorder stores the history of finished resolutions.
type AttemptRecorder interface {
	Record(ctx context.Context, attempt domain.ResolutionAttempt) error
}

type Engine struct {
	gateway       Gateway
	classifier    Classifier
	publisher     Publisher
	recorder      AttemptRecorder
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
	recordTimeout time.Duration
}

type Option func(*Engine)

func WithClassifier(classifier Classifier) Option {
	return func(e *Engine) {
		if classifier != nil {
			e.classifier = classifier
		}
	}
}

func WithPublisher(publisher Publisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithRecorder(recorder AttemptRecorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(gateway Gateway, options ...Option) *Engine {
	e := &Engine{
		gateway:       gateway,
		classifier:    source.NewClassifier(),
		logger:        slog.Default(),
		now:           time.Now,
		newID:         uuid.NewString,
		recordTimeout: defaultRecordTimeout,
	}
	for _, option := range options {
		option(e)
	}
	e.logger = e.logger.With(slog.String("component", "resolve"))
	return e
}

// Resolve runs one resolution to completion. Events still go to the
// publisher when one is configured.
func (e *Engine) Resolve(ctx context.Context, req domain.ResolutionRequest) domain.ResolutionResult {
	return e.run(ctx, e.prepare(req), func(domain.ResolutionEvent) {})
}

// ResolveStream starts a resolution and returns its events. The last event
// has Final set and carries the result, then the channel is closed. Events
// are dropped once ctx is done and nobody reads them.
func (e *Engine) ResolveStream(ctx context.Context, req domain.ResolutionRequest) <-chan domain.ResolutionEvent {
	req = e.prepare(req)
	events := make(chan domain.ResolutionEvent, streamBuffer)
	go func() {
		defer close(events)
		e.run(ctx, req, func(event domain.ResolutionEvent) {
			select {
			case events <- event:
			case <-ctx.Done():
				// Keep the final event when the buffer still has room.
				if event.Final {
					select {
					case events <- event:
					default:
					}
				}
			}
		})
	}()
	return events
}

// prepare assigns a request ID when the caller did not.
func (e *Engine) prepare(req domain.ResolutionRequest) domain.ResolutionRequest {
	req.CandidateURL = strings.TrimSpace(req.CandidateURL)
	if req.ID == "" {
		req.ID = e.newID()
	}
	return req
}

func (e *Engine) run(ctx context.Context, req domain.ResolutionRequest, sink func(domain.ResolutionEvent)) domain.ResolutionResult {
	ctx, span := telemetry.Tracer().Start(ctx, "resolve",
		trace.WithAttributes(
			attribute.String("resolve.request_id", req.ID),
			attribute.String("resolve.media_id", req.MediaID),
		),
	)
	defer span.End()

	metrics.ResolutionsInFlight.Inc()
	defer metrics.ResolutionsInFlight.Dec()

	r := &resolution{engine: e, req: req, sink: sink, start: e.now()}
	outcome := r.walk(ctx)
	result := domain.ResolutionResult{
		RequestID: req.ID,
		MediaID:   req.MediaID,
		Source:    r.kind,
		Fallback:  r.fallback,
		Outcome:   outcome,
		Elapsed:   e.now().Sub(r.start),
	}

	e.observe(span, result)
	view := result.View()
	phase := domain.PhaseDone
	if view.Status != "done" {
		phase = domain.PhaseFailed
	}
	r.emitFinal(phase, &view, result.Outcome)
	e.record(ctx, req, result)
	return result
}

func (e *Engine) observe(span trace.Span, result domain.ResolutionResult) {
	sourceLabel := string(result.Source)
	if sourceLabel == "" {
		sourceLabel = "none"
	}
	span.SetAttributes(
		attribute.String("resolve.source", sourceLabel),
		attribute.Bool("resolve.fallback", result.Fallback),
	)
	metrics.ResolutionDuration.WithLabelValues(sourceLabel).Observe(result.Elapsed.Seconds())

	attrs := []any{
		slog.String("requestId", result.RequestID),
		slog.String("mediaId", result.MediaID),
		slog.String("source", sourceLabel),
		slog.Bool("fallback", result.Fallback),
		slog.Duration("elapsed", result.Elapsed),
	}
	switch outcome := result.Outcome.(type) {
	case domain.Done:
		metrics.ResolutionsTotal.WithLabelValues(sourceLabel, "done").Inc()
		e.logger.Info("resolution done", attrs...)
	case domain.Failed:
		metrics.ResolutionsTotal.WithLabelValues(sourceLabel, string(outcome.Kind)).Inc()
		span.SetStatus(codes.Error, string(outcome.Kind))
		if outcome.Err != nil {
			span.RecordError(outcome.Err)
		}
		attrs = append(attrs, slog.String("kind", string(outcome.Kind)))
		if outcome.Err != nil {
			attrs = append(attrs, slog.String("error", outcome.Err.Error()))
		}
		if outcome.Kind == domain.FailureCanceled {
			e.logger.Debug("resolution canceled", attrs...)
		} else {
			e.logger.Warn("resolution failed", attrs...)
		}
	}
}

func (e *Engine) record(ctx context.Context, req domain.ResolutionRequest, result domain.ResolutionResult) {
	if e.recorder == nil {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.recordTimeout)
	defer cancel()
	if err := e.recorder.Record(recordCtx, result.Attempt(req.Title, e.now())); err != nil {
		e.logger.Warn("resolution history write failed",
			slog.String("requestId", req.ID),
			slog.String("error", err.Error()),
		)
	}
}

// resolution is the mutable state of one run.
type resolution struct {
	engine   *Engine
	req      domain.ResolutionRequest
	sink     func(domain.ResolutionEvent)
	start    time.Time
	kind     domain.SourceKind
	fallback bool

	lastPercent int
	lastStatus  string
}

func (r *resolution) walk(ctx context.Context) domain.Outcome {
	gateway := r.engine.gateway
	link := r.req.CandidateURL
	var magnet string

	phase := domain.PhaseClassify
	for {
		if err := ctx.Err(); err != nil {
			return failed(err)
		}
		switch phase {
		case domain.PhaseClassify:
			r.emit(phase, 0, "")
			if link == "" {
				return failed(fmt.Errorf("%w: empty candidate url", domain.ErrValidation))
			}
			r.kind = r.engine.classifier.Classify(link)
			switch r.kind {
			case domain.SourceDirect:
				return domain.Done{DownloadURL: link}
			case domain.SourceMagnet:
				magnet = link
				phase = domain.PhaseSubmitMagnet
			case domain.SourceIndexerResolveURL:
				phase = domain.PhaseExtract
			default:
				phase = domain.PhaseUnrestrict
			}

		case domain.PhaseUnrestrict:
			r.emit(phase, 0, "")
			unrestricted, err := gateway.UnrestrictLink(ctx, link)
			if err == nil {
				return domain.Done{DownloadURL: unrestricted.Download}
			}
			if errors.Is(err, domain.ErrHosterUnsupported) && !r.fallback {
				r.fallback = true
				metrics.HosterFallbacksTotal.Inc()
				phase = domain.PhaseExtract
				continue
			}
			return failed(err)

		case domain.PhaseExtract:
			r.emit(phase, 0, "")
			extracted, ok := source.ExtractMagnetFromIndexerURL(r.req.CandidateURL)
			if !ok {
				if r.fallback {
					return failed(fmt.Errorf("%w: magnet fallback: %w", domain.ErrHosterUnsupported, domain.ErrNoMagnetHash))
				}
				return failed(domain.ErrNoMagnetHash)
			}
			magnet = extracted
			phase = domain.PhaseSubmitMagnet

		case domain.PhaseSubmitMagnet:
			r.emit(phase, 0, "")
			job, err := gateway.AddMagnetAndWait(ctx, magnet, func(job domain.TorrentJob) {
				r.emit(domain.PhaseWaiting, job.Progress, string(job.Status))
			})
			if err != nil {
				return failed(err)
			}
			if len(job.Links) == 0 {
				return failed(fmt.Errorf("%w: job %s", domain.ErrNoDownloadLinks, job.ID))
			}
			link = job.Links[0]
			phase = domain.PhaseUnrestrictFirst

		case domain.PhaseUnrestrictFirst:
			r.emit(phase, 0, "")
			unrestricted, err := gateway.UnrestrictLink(ctx, link)
			if err != nil {
				return failed(err)
			}
			return domain.Done{DownloadURL: unrestricted.Download}

		default:
			return failed(fmt.Errorf("unknown resolution phase %q", phase))
		}
	}
}

// emit skips waiting events that repeat the previous percent and status.
func (r *resolution) emit(phase domain.Phase, percent int, status string) {
	if phase == domain.PhaseWaiting {
		if percent == r.lastPercent && status == r.lastStatus {
			return
		}
		r.lastPercent = percent
		r.lastStatus = status
	}
	r.deliver(domain.ResolutionEvent{
		RequestID: r.req.ID,
		MediaID:   r.req.MediaID,
		Phase:     phase,
		Percent:   percent,
		Status:    status,
		At:        r.engine.now(),
	})
}

func (r *resolution) emitFinal(phase domain.Phase, view *domain.ResolutionView, outcome domain.Outcome) {
	r.deliver(domain.ResolutionEvent{
		RequestID: r.req.ID,
		MediaID:   r.req.MediaID,
		Phase:     phase,
		Status:    view.Status,
		Final:     true,
		Result:    view,
		At:        r.engine.now(),
		Outcome:   outcome,
	})
}

func (r *resolution) deliver(event domain.ResolutionEvent) {
	r.sink(event)
	if r.engine.publisher != nil {
		r.engine.publisher.Publish(event)
	}
}

func failed(err error) domain.Failed {
	return domain.Failed{Kind: domain.ClassifyFailure(err), Err: err}
}
