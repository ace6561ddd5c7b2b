package domain

type MediaType string

const (
	MediaMovie  MediaType = "movie"
	MediaSeries MediaType = "series"
)

// StreamCandidate is one playable option returned by the stream index.
// IsDirectLink is a hint from the index; resolution classifies the URL itself.
type StreamCandidate struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	SizeLabel    string `json:"sizeLabel,omitempty"`
	QualityLabel string `json:"qualityLabel,omitempty"`
	IsDirectLink bool   `json:"isDirectLink"`
}

type StreamSearchRequest struct {
	ImdbID  string
	Type    MediaType
	Season  int
	Episode int
}

type StreamSearchResponse struct {
	Streams   []StreamCandidate `json:"streams"`
	Error     string            `json:"error,omitempty"`
	Message   string            `json:"message,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}
