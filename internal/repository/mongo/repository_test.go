package mongo

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"torrentstream/resolver/internal/domain"
)

func TestToDocFromDocRoundtrip(t *testing.T) {
	finished := time.Date(2026, 2, 19, 10, 0, 0, 0, time.UTC)
	attempt := domain.ResolutionAttempt{
		RequestID:  "req-1",
		MediaID:    "media-1",
		Title:      "Show S01E01 1080p",
		Source:     domain.SourceHosterLink,
		Fallback:   true,
		Status:     "failed",
		Kind:       domain.FailureTorrentDead,
		ElapsedMS:  1234,
		FinishedAt: finished,
	}

	got := fromDoc(toDoc(attempt))
	if got != attempt {
		t.Fatalf("roundtrip mismatch:\n got %+v\nwant %+v", got, attempt)
	}
}

func TestToDocFillsFinishedAt(t *testing.T) {
	doc := toDoc(domain.ResolutionAttempt{RequestID: "r"})
	if doc.FinishedAt.IsZero() || doc.FinishedAt.Location() != time.UTC {
		t.Fatalf("finishedAt should default to now in UTC, got %v", doc.FinishedAt)
	}
}

func TestAttemptDocHasNoLinkFields(t *testing.T) {
	raw, err := bson.Marshal(toDoc(domain.ResolutionAttempt{
		RequestID: "r",
		Status:    "done",
		Source:    domain.SourceMagnet,
	}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, forbidden := range []string{"url", "downloadUrl", "candidateUrl", "magnet"} {
		if _, ok := fields[forbidden]; ok {
			t.Fatalf("attempt document must not store %q", forbidden)
		}
	}
	if fields["_id"] != "r" || fields["status"] != "done" {
		t.Fatalf("unexpected document %v", fields)
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, defaultListLimit},
		{-3, defaultListLimit},
		{10, 10},
		{10000, maxListLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFromDocsEmpty(t *testing.T) {
	if got := fromDocs(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}
