package domain

import "time"

type BatchItemStatus string

const (
	BatchPending   BatchItemStatus = "pending"
	BatchSearching BatchItemStatus = "searching"
	BatchReady     BatchItemStatus = "ready"
	BatchError     BatchItemStatus = "error"
)

type EpisodeRef struct {
	Season  int `json:"season"`
	Episode int `json:"episode"`
}

type BatchQueueItem struct {
	Season      int              `json:"season"`
	Episode     int              `json:"episode"`
	Stream      *StreamCandidate `json:"stream,omitempty"`
	Status      BatchItemStatus  `json:"status"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type BatchSpec struct {
	ImdbID   string       `json:"imdbId"`
	MediaID  string       `json:"mediaId,omitempty"`
	Episodes []EpisodeRef `json:"episodes"`

	// Resolve also turns each picked stream into a playable link.
	Resolve bool `json:"resolve"`
}

type BatchState string

const (
	BatchStateQueued    BatchState = "queued"
	BatchStateRunning   BatchState = "running"
	BatchStateCompleted BatchState = "completed"
	BatchStateCanceled  BatchState = "canceled"
)

type Batch struct {
	ID        string           `json:"id"`
	ImdbID    string           `json:"imdbId"`
	MediaID   string           `json:"mediaId,omitempty"`
	State     BatchState       `json:"state"`
	Resolve   bool             `json:"resolve"`
	Items     []BatchQueueItem `json:"items"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
