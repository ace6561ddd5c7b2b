package debrid

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/metrics"
)

// ProgressFunc receives the job after every poll. Progress never decreases
// between calls of one wait.
type ProgressFunc func(job domain.TorrentJob)

// AddMagnetAndWait submits a magnet and polls until the job reaches a
// terminal state, the wait timeout elapses or ctx is cancelled. A finished
// job is returned even when it carries no links.
func (c *Client) AddMagnetAndWait(ctx context.Context, magnet string, onProgress ProgressFunc) (domain.TorrentJob, error) {
	start := time.Now()
	job, err := c.AddMagnet(ctx, magnet)
	if err != nil {
		return job, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.waitTimeout)
	defer cancel()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	highest := 0
	report := func(job *domain.TorrentJob) {
		if job.Status == domain.TorrentDownloaded {
			job.Progress = 100
		}
		if job.Progress < highest {
			job.Progress = highest
		}
		highest = job.Progress
		if onProgress != nil {
			onProgress(*job)
		}
	}

	for {
		report(&job)
		if job.Status.Terminal() {
			metrics.TorrentWaitDuration.WithLabelValues(string(job.Status)).Observe(time.Since(start).Seconds())
			return job, terminalError(job)
		}

		select {
		case <-waitCtx.Done():
			return job, c.waitStopped(ctx, job, start)
		case <-ticker.C:
		}

		if job.Status == domain.TorrentWaitingFiles {
			if err := c.SelectAllFiles(waitCtx, job.ID); err != nil && !isRetryable(err) {
				return job, err
			}
		}

		next, err := c.PollTorrentStatus(waitCtx, job.ID)
		if err != nil {
			if waitCtx.Err() != nil {
				return job, c.waitStopped(ctx, job, start)
			}
			if !isRetryable(err) {
				return job, err
			}
			c.logger.Warn("torrent poll failed, will poll again",
				slog.String("torrentId", job.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		job = next
	}
}

func (c *Client) waitStopped(ctx context.Context, job domain.TorrentJob, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	metrics.TorrentWaitDuration.WithLabelValues("timeout").Observe(time.Since(start).Seconds())
	c.logger.Warn("torrent wait timed out",
		slog.String("torrentId", job.ID),
		slog.String("status", string(job.Status)),
		slog.Int("progress", job.Progress),
		slog.Duration("timeout", c.waitTimeout),
	)
	return fmt.Errorf("%w: job %s still %s at %d%% after %s", domain.ErrTorrentTimeout, job.ID, job.Status, job.Progress, c.waitTimeout)
}

func terminalError(job domain.TorrentJob) error {
	switch job.Status {
	case domain.TorrentDownloaded:
		return nil
	case domain.TorrentDead:
		return fmt.Errorf("%w: job %s", domain.ErrTorrentDead, job.ID)
	default:
		return fmt.Errorf("%w: job %s ended as %s", domain.ErrTorrentError, job.ID, job.Status)
	}
}
