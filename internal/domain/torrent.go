package domain

import "time"

type TorrentStatus string

const (
	TorrentMagnetError      TorrentStatus = "magnet_error"
	TorrentMagnetConversion TorrentStatus = "magnet_conversion"
	TorrentWaitingFiles     TorrentStatus = "waiting_files_selection"
	TorrentQueued           TorrentStatus = "queued"
	TorrentDownloading      TorrentStatus = "downloading"
	TorrentDownloaded       TorrentStatus = "downloaded"
	TorrentError            TorrentStatus = "error"
	TorrentVirus            TorrentStatus = "virus"
	TorrentCompressing      TorrentStatus = "compressing"
	TorrentUploading        TorrentStatus = "uploading"
	TorrentDead             TorrentStatus = "dead"
)

// Terminal reports whether the remote job will not change state anymore.
func (s TorrentStatus) Terminal() bool {
	switch s {
	case TorrentDownloaded, TorrentMagnetError, TorrentError, TorrentVirus, TorrentDead:
		return true
	default:
		return false
	}
}

// Failed reports a terminal failure state.
func (s TorrentStatus) Failed() bool {
	return s.Terminal() && s != TorrentDownloaded
}

// TorrentJob is the remote debrid service's view of a submitted magnet.
type TorrentJob struct {
	ID       string        `json:"id"`
	Hash     string        `json:"hash,omitempty"`
	Filename string        `json:"filename,omitempty"`
	Status   TorrentStatus `json:"status"`
	Progress int           `json:"progress"`
	Bytes    int64         `json:"bytes,omitempty"`
	Links    []string      `json:"links"`
	Added    time.Time     `json:"added,omitempty"`
}

// Download is an entry of the remote "already unrestricted" list.
type Download struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Filesize  int64     `json:"filesize"`
	Link      string    `json:"link"`
	Download  string    `json:"download"`
	Host      string    `json:"host,omitempty"`
	Generated time.Time `json:"generated,omitempty"`
}

type AccountStatus struct {
	Username  string    `json:"username,omitempty"`
	IsPremium bool      `json:"isPremium"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
	Points    int       `json:"points,omitempty"`
}
