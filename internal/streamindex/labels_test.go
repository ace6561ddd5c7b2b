package streamindex

import "testing"

func TestToCandidateSkipsUnplayable(t *testing.T) {
	if _, ok := toCandidate(wireStream{Name: "x", Title: "nothing to play"}); ok {
		t.Fatalf("stream without url or hash must be skipped")
	}
}

func TestCleanText(t *testing.T) {
	got := cleanText("  Café\x00 Movie\nline two\t ")
	if got != "Café Movie\nline two" {
		t.Fatalf("cleanText = %q", got)
	}
}

func TestSizeLabel(t *testing.T) {
	cases := []struct {
		title string
		size  int64
		want  string
	}{
		{"Movie\n👤 3 💾 1.4 GB ⚙️ x", 0, "1.4 GB"},
		{"Movie\n💾 700 MB", 0, "700 MB"},
		{"Movie", 1536 * 1024 * 1024, "1.5 GB"},
		{"Movie", 0, ""},
	}
	for _, tc := range cases {
		if got := sizeLabel(tc.title, tc.size); got != tc.want {
			t.Errorf("sizeLabel(%q, %d) = %q, want %q", tc.title, tc.size, got, tc.want)
		}
	}
}

func TestQualityLabelFallsBackToName(t *testing.T) {
	if got := qualityLabel("", "Torrentio\n4k HDR"); got != "4k HDR" {
		t.Fatalf("qualityLabel fallback = %q", got)
	}
	if got := qualityLabel("Show.S01E02.1080p.WEB.h264-GRP", "Torrentio"); got == "" {
		t.Fatalf("expected resolution from release name")
	}
}
