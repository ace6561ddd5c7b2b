package redact

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactorString(t *testing.T) {
	r := New("SECRETKEY123", "")
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"path", "https://idx.example/resolve/realdebrid/SECRETKEY123/abc", "https://idx.example/resolve/realdebrid/REDACTED/abc"},
		{"options segment", "https://idx.example/realdebrid=SECRETKEY123/stream", "https://idx.example/realdebrid=REDACTED/stream"},
		{"no secret", "https://hoster.example/f", "https://hoster.example/f"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.String(tc.input); got != tc.want {
				t.Errorf("String(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestRedactorEscapedSecret(t *testing.T) {
	r := New("a b/c")
	got := r.String("x?key=a+b%2Fc&y=a%20b%2Fc")
	if strings.Contains(got, "a+b") || strings.Contains(got, "a%20b") {
		t.Fatalf("escaped secret leaked: %s", got)
	}
}

func TestNilAndEmptyRedactor(t *testing.T) {
	var r *Redactor
	if r.String("abc") != "abc" {
		t.Fatalf("nil redactor must pass through")
	}
	if New().String("abc") != "abc" {
		t.Fatalf("empty redactor must pass through")
	}
}

func TestReplaceAttrScrubsLogs(t *testing.T) {
	r := New("TOPSECRET")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{ReplaceAttr: r.ReplaceAttr}))
	logger.Info("request",
		slog.String("url", "https://x/TOPSECRET/y"),
		slog.Any("error", errors.New("bad token TOPSECRET")),
		slog.Int("n", 3),
	)
	out := buf.String()
	if strings.Contains(out, "TOPSECRET") {
		t.Fatalf("secret leaked into log: %s", out)
	}
	if !strings.Contains(out, "n=3") {
		t.Fatalf("non-string attrs must survive: %s", out)
	}
}
