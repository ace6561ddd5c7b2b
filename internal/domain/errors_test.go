package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "wrapped hoster", err: fmt.Errorf("unrestrict: %w", ErrHosterUnsupported), want: FailureHosterUnsupported},
		{name: "auth", err: ErrAuth, want: FailureAuth},
		{name: "timeout", err: fmt.Errorf("wait: %w", ErrTorrentTimeout), want: FailureTorrentTimeout},
		{name: "dead", err: ErrTorrentDead, want: FailureTorrentDead},
		{name: "canceled", err: fmt.Errorf("poll: %w", context.Canceled), want: FailureCanceled},
		{name: "deadline", err: context.DeadlineExceeded, want: FailureTransient},
		{name: "rate limited", err: ErrRateLimited, want: FailureRateLimited},
		{name: "unknown", err: errors.New("boom"), want: FailureUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailure(tc.err); got != tc.want {
				t.Fatalf("ClassifyFailure(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestTorrentStatusTerminal(t *testing.T) {
	terminal := []TorrentStatus{TorrentDownloaded, TorrentMagnetError, TorrentError, TorrentVirus, TorrentDead}
	for _, status := range terminal {
		if !status.Terminal() {
			t.Fatalf("%s should be terminal", status)
		}
	}
	for _, status := range []TorrentStatus{TorrentWaitingFiles, TorrentDownloading, TorrentQueued, TorrentMagnetConversion} {
		if status.Terminal() {
			t.Fatalf("%s should not be terminal", status)
		}
	}
	if TorrentDownloaded.Failed() {
		t.Fatalf("downloaded must not be a failure")
	}
	if !TorrentVirus.Failed() {
		t.Fatalf("virus must be a failure")
	}
}

func TestResolutionResultView(t *testing.T) {
	done := ResolutionResult{RequestID: "r1", Outcome: Done{DownloadURL: "https://x/d/1"}}
	if url, ok := done.URL(); !ok || url != "https://x/d/1" {
		t.Fatalf("URL() = %q, %v", url, ok)
	}
	if view := done.View(); view.Status != "done" || view.DownloadURL != "https://x/d/1" {
		t.Fatalf("unexpected view: %+v", view)
	}

	failed := ResolutionResult{RequestID: "r2", Outcome: Failed{Kind: FailureNoMagnetHash, Err: ErrNoMagnetHash}}
	if _, ok := failed.URL(); ok {
		t.Fatalf("failed result must not expose a URL")
	}
	if !errors.Is(failed.Err(), ErrNoMagnetHash) {
		t.Fatalf("Err() = %v", failed.Err())
	}
	view := failed.View()
	if view.Status != "failed" || view.Kind != FailureNoMagnetHash || view.DownloadURL != "" {
		t.Fatalf("unexpected view: %+v", view)
	}
}
