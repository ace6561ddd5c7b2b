package source

import (
	"strings"
	"testing"
)

const (
	sampleHash   = "0123456789abcdef0123456789abcdef01234567"
	sampleBase32 = "AERUKZ4JVPG66AJDIVTYTK6N54ASGRLH"
)

// ---------------------------------------------------------------------------
// ParseInfoHash
// ---------------------------------------------------------------------------

func TestParseInfoHash(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"lowercase hex", sampleHash, sampleHash, true},
		{"uppercase hex", strings.ToUpper(sampleHash), sampleHash, true},
		{"urn prefix", "urn:btih:" + sampleHash, sampleHash, true},
		{"base32", sampleBase32, sampleHash, true},
		{"base32 lowercase", strings.ToLower(sampleBase32), sampleHash, true},
		{"too short", "abcdef", "", false},
		{"not hex", strings.Repeat("z", 40), "", false},
		{"empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseInfoHash(tc.input)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("ParseInfoHash(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ExtractMagnetFromIndexerURL
// ---------------------------------------------------------------------------

func TestExtractMagnetFromIndexerURL(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "hex in resolve path",
			input:  "https://torrentio.strem.fun/resolve/realdebrid/REDACTED/" + sampleHash + "/null/0/Movie.mkv",
			want:   "magnet:?xt=urn:btih:" + sampleHash,
			wantOK: true,
		},
		{
			name:   "uppercase hex",
			input:  "https://idx.example/resolve/rd/" + strings.ToUpper(sampleHash),
			want:   "magnet:?xt=urn:btih:" + sampleHash,
			wantOK: true,
		},
		{
			name:   "base32 behind urn prefix in path",
			input:  "https://idx.example/resolve/rd/urn:btih:" + sampleBase32 + "/1",
			want:   "magnet:?xt=urn:btih:" + sampleHash,
			wantOK: true,
		},
		{
			name:   "base32 under hash query key",
			input:  "https://idx.example/resolve?infohash=" + sampleBase32,
			want:   "magnet:?xt=urn:btih:" + sampleHash,
			wantOK: true,
		},
		{
			name:   "base32-looking slug in path",
			input:  "https://idx.example/resolve/rd/abcdefghijklmnopqrstuvwxyzabcdef/0",
			wantOK: false,
		},
		{
			name:   "base32-looking value under unrelated key",
			input:  "https://idx.example/resolve?title=abcdefghijklmnopqrstuvwxyzabcdef",
			wantOK: false,
		},
		{
			name:   "first query hash in source order",
			input:  "https://idx.example/resolve/x?z=" + strings.Repeat("c", 40) + "&a=" + strings.Repeat("a", 40),
			want:   "magnet:?xt=urn:btih:" + strings.Repeat("c", 40),
			wantOK: true,
		},
		{
			name:   "hash in query",
			input:  "https://hoster.example/get?id=7&btih=" + sampleHash,
			want:   "magnet:?xt=urn:btih:" + sampleHash,
			wantOK: true,
		},
		{
			name:   "no hash",
			input:  "https://idx.example/resolve/rd/key/notahash/0",
			wantOK: false,
		},
		{
			name:   "garbage",
			input:  "::not a url",
			wantOK: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractMagnetFromIndexerURL(tc.input)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("ExtractMagnetFromIndexerURL(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestExtractMagnetFromIndexerURLIsDeterministic(t *testing.T) {
	link := "https://idx.example/resolve/x?a=" + strings.Repeat("a", 40) +
		"&b=" + strings.Repeat("b", 40) +
		"&c=" + strings.Repeat("c", 40)
	want := "magnet:?xt=urn:btih:" + strings.Repeat("a", 40)
	for i := 0; i < 200; i++ {
		got, ok := ExtractMagnetFromIndexerURL(link)
		if !ok || got != want {
			t.Fatalf("run %d: got %q, %v; want %q", i, got, ok, want)
		}
	}
}

func TestExtractedMagnetRoundTripsThroughMetainfo(t *testing.T) {
	magnet, ok := ExtractMagnetFromIndexerURL("https://idx.example/resolve?btih=" + sampleBase32)
	if !ok {
		t.Fatalf("expected magnet")
	}
	hash, ok := MagnetInfoHash(magnet)
	if !ok || hash != sampleHash {
		t.Fatalf("MagnetInfoHash(%q) = %q, %v", magnet, hash, ok)
	}
}

// ---------------------------------------------------------------------------
// BuildMagnet
// ---------------------------------------------------------------------------

func TestBuildMagnet(t *testing.T) {
	magnet := BuildMagnet(sampleHash, "Some Movie", []string{"udp://tracker:1337", " "})
	if !strings.HasPrefix(magnet, "magnet:?xt=urn:btih:"+sampleHash) {
		t.Fatalf("unexpected magnet: %s", magnet)
	}
	if !strings.Contains(magnet, "dn=Some+Movie") {
		t.Fatalf("expected encoded name: %s", magnet)
	}
	if strings.Count(magnet, "&tr=") != 1 {
		t.Fatalf("expected one tracker: %s", magnet)
	}
	if BuildMagnet("bad", "x", nil) != "" {
		t.Fatalf("invalid hash must produce empty magnet")
	}
}

func TestMagnetInfoHashRejectsInvalid(t *testing.T) {
	if _, ok := MagnetInfoHash("https://not-a-magnet"); ok {
		t.Fatalf("expected failure for non magnet")
	}
}
