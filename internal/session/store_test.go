package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"torrentstream/resolver/internal/domain"
)

func doneResult(url string) domain.ResolutionResult {
	return domain.ResolutionResult{Outcome: domain.Done{DownloadURL: url}}
}

func failedResult(kind domain.FailureKind, err error) domain.ResolutionResult {
	return domain.ResolutionResult{Outcome: domain.Failed{Kind: kind, Err: err}}
}

func TestStoreStaleCompletionIsDiscarded(t *testing.T) {
	store := NewStore(time.Hour)
	candidate := domain.StreamCandidate{URL: "https://hoster.example/a"}

	first, firstCtx := store.Begin(context.Background(), "m1", "r1", candidate)
	second, _ := store.Begin(context.Background(), "m1", "r2", candidate)

	select {
	case <-firstCtx.Done():
	default:
		t.Fatalf("superseded resolution must be cancelled")
	}
	if second.Generation != first.Generation+1 {
		t.Fatalf("generation must increase: %d -> %d", first.Generation, second.Generation)
	}

	if !store.Complete(second, doneResult("https://cdn.example/new.mkv")) {
		t.Fatalf("current generation must apply")
	}
	if store.Complete(first, doneResult("https://cdn.example/old.mkv")) {
		t.Fatalf("stale generation must not apply")
	}

	entry, ok := store.Get("m1")
	if !ok || entry.Resolved == nil || entry.Resolved.URL != "https://cdn.example/new.mkv" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Resolved.RequestID != "r2" || entry.InFlight {
		t.Fatalf("unexpected resolved metadata: %+v", entry)
	}
}

func TestStoreFailureKeepsResolvedLink(t *testing.T) {
	store := NewStore(time.Hour)
	candidate := domain.StreamCandidate{URL: "magnet:?xt=urn:btih:abc"}

	ticket, _ := store.Begin(context.Background(), "m1", "r1", candidate)
	store.Complete(ticket, doneResult("https://cdn.example/ok.mkv"))

	ticket, _ = store.Begin(context.Background(), "m1", "r2", candidate)
	if !store.Complete(ticket, failedResult(domain.FailureTorrentDead, errors.New("torrent is dead"))) {
		t.Fatalf("failure of the current generation must apply")
	}

	entry, _ := store.Get("m1")
	if entry.Resolved == nil || entry.Resolved.URL != "https://cdn.example/ok.mkv" {
		t.Fatalf("failure cleared the resolved link: %+v", entry.Resolved)
	}
	if entry.LastError == nil || entry.LastError.Kind != domain.FailureTorrentDead || entry.LastError.RequestID != "r2" {
		t.Fatalf("unexpected last error: %+v", entry.LastError)
	}
}

func TestStoreBeginSelectsKnownCandidate(t *testing.T) {
	store := NewStore(time.Hour)
	store.SetCandidates("m1", []domain.StreamCandidate{
		{URL: "https://a", Title: "A", QualityLabel: "1080p"},
		{URL: "https://b", Title: "B"},
	})
	store.Begin(context.Background(), "m1", "r1", domain.StreamCandidate{URL: "https://a"})

	entry, _ := store.Get("m1")
	if entry.Selected == nil || entry.Selected.QualityLabel != "1080p" {
		t.Fatalf("selected candidate should carry stored labels: %+v", entry.Selected)
	}
	if len(entry.Candidates) != 2 || !entry.InFlight || entry.InFlightID != "r1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	entry.Candidates[0].Title = "mutated"
	again, _ := store.Get("m1")
	if again.Candidates[0].Title != "A" {
		t.Fatalf("snapshot must not alias store state")
	}
}

func TestStoreForgetCancelsInFlight(t *testing.T) {
	store := NewStore(time.Hour)
	ticket, ctx := store.Begin(context.Background(), "m1", "r1", domain.StreamCandidate{URL: "https://a"})
	if !store.Forget("m1") {
		t.Fatalf("forget should report the removed entry")
	}
	if ctx.Err() == nil {
		t.Fatalf("forget must cancel the running resolution")
	}
	if store.Complete(ticket, doneResult("https://x")) {
		t.Fatalf("completion after forget must be discarded")
	}
	if _, ok := store.Get("m1"); ok {
		t.Fatalf("entry should be gone")
	}
}

func TestStoreSweep(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewStore(time.Hour)
	store.now = func() time.Time { return now }

	store.SetCandidates("idle", []domain.StreamCandidate{{URL: "https://a"}})
	store.Begin(context.Background(), "busy", "r1", domain.StreamCandidate{URL: "https://b"})

	now = now.Add(2 * time.Hour)
	store.SetCandidates("fresh", []domain.StreamCandidate{{URL: "https://c"}})

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected only the idle entry removed, got %d", removed)
	}
	if _, ok := store.Get("idle"); ok {
		t.Fatalf("idle entry should expire")
	}
	if _, ok := store.Get("busy"); !ok {
		t.Fatalf("in-flight entry must survive sweeping")
	}
	if store.Len() != 2 {
		t.Fatalf("unexpected len %d", store.Len())
	}
}
