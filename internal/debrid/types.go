package debrid

import (
	"math"
	"strconv"
	"strings"
	"time"

	"torrentstream/resolver/internal/domain"
)

type unrestrictResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Filesize int64  `json:"filesize"`
	Link     string `json:"link"`
	Host     string `json:"host"`
	Download string `json:"download"`
}

// Unrestricted is a hoster link turned into a direct download.
type Unrestricted struct {
	Download string `json:"download"`
	Filename string `json:"filename,omitempty"`
	Filesize int64  `json:"filesize,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type addMagnetResponse struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type torrentInfo struct {
	ID       string   `json:"id"`
	Filename string   `json:"filename"`
	Hash     string   `json:"hash"`
	Bytes    int64    `json:"bytes"`
	Progress float64  `json:"progress"`
	Status   string   `json:"status"`
	Added    string   `json:"added"`
	Links    []string `json:"links"`
}

type downloadItem struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Filesize  int64  `json:"filesize"`
	Link      string `json:"link"`
	Host      string `json:"host"`
	Download  string `json:"download"`
	Generated string `json:"generated"`
}

type userInfo struct {
	Username   string `json:"username"`
	Points     int    `json:"points"`
	Type       string `json:"type"`
	Expiration string `json:"expiration"`
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorCode int    `json:"error_code"`
}

func (t torrentInfo) job() domain.TorrentJob {
	progress := int(math.Round(t.Progress))
	switch {
	case progress < 0:
		progress = 0
	case progress > 100:
		progress = 100
	}
	links := t.Links
	if links == nil {
		links = []string{}
	}
	return domain.TorrentJob{
		ID:       t.ID,
		Hash:     strings.ToLower(t.Hash),
		Filename: t.Filename,
		Status:   domain.TorrentStatus(t.Status),
		Progress: progress,
		Bytes:    t.Bytes,
		Links:    links,
		Added:    parseTime(t.Added),
	}
}

func (d downloadItem) download() domain.Download {
	return domain.Download{
		ID:        d.ID,
		Filename:  d.Filename,
		Filesize:  d.Filesize,
		Link:      d.Link,
		Download:  d.Download,
		Host:      d.Host,
		Generated: parseTime(d.Generated),
	}
}

func (u userInfo) account() domain.AccountStatus {
	return domain.AccountStatus{
		Username:  u.Username,
		IsPremium: strings.EqualFold(u.Type, "premium"),
		ExpiresAt: parseTime(u.Expiration),
		Points:    u.Points,
	}
}

func parseTime(raw string) time.Time {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC()
	}
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	return time.Time{}
}
