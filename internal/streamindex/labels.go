package streamindex

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ptt "github.com/MunifTanjim/go-ptt"
	"golang.org/x/text/unicode/norm"

	"torrentstream/resolver/internal/domain"
	"torrentstream/resolver/internal/source"
)

var sizePattern = regexp.MustCompile(`💾\s*([0-9]+(?:[.,][0-9]+)?\s*[KMGT]i?B)`)

func toCandidate(stream wireStream) (domain.StreamCandidate, bool) {
	title := cleanText(stream.Title)
	if title == "" {
		title = cleanText(stream.Description)
	}
	release := strings.TrimSpace(stream.BehaviorHints.Filename)
	if release == "" {
		release = firstLine(title)
	}

	link := strings.TrimSpace(stream.URL)
	if link == "" && stream.InfoHash != "" {
		link = source.BuildMagnet(stream.InfoHash, release, nil)
	}
	if link == "" {
		return domain.StreamCandidate{}, false
	}
	if title == "" {
		title = cleanText(stream.Name)
	}

	return domain.StreamCandidate{
		URL:          link,
		Title:        title,
		SizeLabel:    sizeLabel(title, stream.BehaviorHints.VideoSize),
		QualityLabel: qualityLabel(release, stream.Name),
		IsDirectLink: strings.Contains(stream.Name, "+]"),
	}, true
}

// cleanText normalizes to NFC and drops control characters other than newlines.
func cleanText(raw string) string {
	value := norm.NFC.String(raw)
	value = strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	return strings.TrimSpace(value)
}

func firstLine(value string) string {
	line, _, _ := strings.Cut(value, "\n")
	return strings.TrimSpace(line)
}

func sizeLabel(title string, videoSize int64) string {
	if match := sizePattern.FindStringSubmatch(title); len(match) == 2 {
		return strings.Join(strings.Fields(match[1]), " ")
	}
	if videoSize > 0 {
		return formatBytes(videoSize)
	}
	return ""
}

// qualityLabel prefers the resolution parsed from the release name and falls
// back to the last line of the addon's stream name ("Torrentio\n4k").
func qualityLabel(release, name string) string {
	if release != "" {
		if info := ptt.Parse(release); info != nil && info.Resolution != "" {
			return info.Resolution
		}
	}
	lines := strings.Split(strings.TrimSpace(name), "\n")
	if len(lines) > 1 {
		return strings.TrimSpace(lines[len(lines)-1])
	}
	return ""
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for value := n / unit; value >= unit; value /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
