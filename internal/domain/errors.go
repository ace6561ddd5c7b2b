package domain

import (
	"context"
	"errors"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrAuth              = errors.New("debrid authentication failed")
	ErrHosterUnsupported = errors.New("hoster unsupported")
	ErrNoMagnetHash      = errors.New("no info hash in link")
	ErrNoDownloadLinks   = errors.New("torrent finished without download links")
	ErrTorrentTimeout    = errors.New("torrent did not finish in time")
	ErrTorrentDead       = errors.New("torrent is dead")
	ErrTorrentError      = errors.New("torrent failed")
	ErrTransient         = errors.New("transient upstream failure")
	ErrRateLimited       = errors.New("rate limited")
	ErrNotFound          = errors.New("not found")
)

type FailureKind string

const (
	FailureValidation        FailureKind = "validation"
	FailureAuth              FailureKind = "auth"
	FailureHosterUnsupported FailureKind = "hoster_unsupported"
	FailureNoMagnetHash      FailureKind = "no_magnet_hash"
	FailureNoDownloadLinks   FailureKind = "no_download_links"
	FailureTorrentTimeout    FailureKind = "torrent_timeout"
	FailureTorrentDead       FailureKind = "torrent_dead"
	FailureTorrentError      FailureKind = "torrent_error"
	FailureTransient         FailureKind = "transient"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureCanceled          FailureKind = "canceled"
	FailureUnknown           FailureKind = "unknown"
)

var failureKinds = []struct {
	err  error
	kind FailureKind
}{
	{ErrValidation, FailureValidation},
	{ErrAuth, FailureAuth},
	{ErrHosterUnsupported, FailureHosterUnsupported},
	{ErrNoMagnetHash, FailureNoMagnetHash},
	{ErrNoDownloadLinks, FailureNoDownloadLinks},
	{ErrTorrentTimeout, FailureTorrentTimeout},
	{ErrTorrentDead, FailureTorrentDead},
	{ErrTorrentError, FailureTorrentError},
	{ErrRateLimited, FailureRateLimited},
	{ErrTransient, FailureTransient},
}

// ClassifyFailure maps an error onto the closed set of failure kinds.
func ClassifyFailure(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	for _, item := range failureKinds {
		if errors.Is(err, item.err) {
			return item.kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}
	return FailureUnknown
}

// Retryable reports whether the same request may succeed later without user action.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureTransient, FailureRateLimited, FailureTorrentTimeout:
		return true
	default:
		return false
	}
}
