package domain

import "time"

type SourceKind string

const (
	SourceDirect            SourceKind = "direct"
	SourceMagnet            SourceKind = "magnet"
	SourceIndexerResolveURL SourceKind = "indexerResolveUrl"
	SourceHosterLink        SourceKind = "hosterLink"
)

type ResolutionRequest struct {
	ID           string `json:"id"`
	CandidateURL string `json:"url"`
	MediaID      string `json:"mediaId,omitempty"`
	Title        string `json:"title,omitempty"`
}

// Outcome is either Done or Failed.
type Outcome interface {
	isOutcome()
}

type Done struct {
	DownloadURL string
}

type Failed struct {
	Kind FailureKind
	Err  error
}

func (Done) isOutcome() {}
func (Failed) isOutcome() {}

type ResolutionResult struct {
	RequestID string
	MediaID   string
	Source    SourceKind

	// Fallback is set when a hoster rejection was retried through the magnet path.
	Fallback bool
	Outcome  Outcome
	Elapsed  time.Duration
}

// URL returns the playable link when the resolution succeeded.
func (r ResolutionResult) URL() (string, bool) {
	done, ok := r.Outcome.(Done)
	if !ok {
		return "", false
	}
	return done.DownloadURL, true
}

// Err returns the failure cause, or nil for a successful result.
func (r ResolutionResult) Err() error {
	if failed, ok := r.Outcome.(Failed); ok {
		return failed.Err
	}
	return nil
}

// ResolutionView is the JSON shape of a finished resolution.
type ResolutionView struct {
	RequestID   string      `json:"requestId"`
	MediaID     string      `json:"mediaId,omitempty"`
	Status      string      `json:"status"`
	Source      SourceKind  `json:"source,omitempty"`
	Fallback    bool        `json:"fallback,omitempty"`
	DownloadURL string      `json:"downloadUrl,omitempty"`
	Kind        FailureKind `json:"kind,omitempty"`
	Message     string      `json:"message,omitempty"`
	ElapsedMS   int64       `json:"elapsedMs"`
}

func (r ResolutionResult) View() ResolutionView {
	view := ResolutionView{
		RequestID: r.RequestID,
		MediaID:   r.MediaID,
		Source:    r.Source,
		Fallback:  r.Fallback,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	switch outcome := r.Outcome.(type) {
	case Done:
		view.Status = "done"
		view.DownloadURL = outcome.DownloadURL
	case Failed:
		view.Status = "failed"
		view.Kind = outcome.Kind
		if outcome.Err != nil {
			view.Message = outcome.Err.Error()
		}
	}
	return view
}

type Phase string

const (
	PhaseClassify        Phase = "classify"
	PhaseUnrestrict      Phase = "unrestrict"
	PhaseExtract         Phase = "extract_magnet"
	PhaseSubmitMagnet    Phase = "submit_magnet"
	PhaseWaiting         Phase = "waiting"
	PhaseUnrestrictFirst Phase = "unrestrict_first_link"
	PhaseDone            Phase = "done"
	PhaseFailed          Phase = "failed"
)

// ResolutionEvent reports progress of one resolution. Percent is zero outside
// the magnet wait phase. The last event of a run has Final set and carries the result.
type ResolutionEvent struct {
	RequestID string          `json:"requestId"`
	MediaID   string          `json:"mediaId,omitempty"`
	Phase     Phase           `json:"phase"`
	Percent   int             `json:"percent"`
	Status    string          `json:"status"`
	Final     bool            `json:"final"`
	Result    *ResolutionView `json:"result,omitempty"`
	At        time.Time       `json:"at"`

	// Outcome is set on the final event only.
	Outcome Outcome `json:"-"`
}

// ResolutionAttempt is the history record of one finished resolution. It
// never holds the candidate or the resolved URL.
type ResolutionAttempt struct {
	RequestID  string      `json:"requestId"`
	MediaID    string      `json:"mediaId,omitempty"`
	Title      string      `json:"title,omitempty"`
	Source     SourceKind  `json:"source,omitempty"`
	Fallback   bool        `json:"fallback,omitempty"`
	Status     string      `json:"status"`
	Kind       FailureKind `json:"kind,omitempty"`
	ElapsedMS  int64       `json:"elapsedMs"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// Attempt derives the history record of a finished result.
func (r ResolutionResult) Attempt(title string, finishedAt time.Time) ResolutionAttempt {
	view := r.View()
	return ResolutionAttempt{
		RequestID:  r.RequestID,
		MediaID:    r.MediaID,
		Title:      title,
		Source:     r.Source,
		Fallback:   r.Fallback,
		Status:     view.Status,
		Kind:       view.Kind,
		ElapsedMS:  r.Elapsed.Milliseconds(),
		FinishedAt: finishedAt,
	}
}
