// Package session keeps per-media resolution state between requests: the
// candidate list, the selected stream and the last resolved link. Each
// resolution started for a media gets a new generation; only the newest
// generation may write its result back.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"torrentstream/resolver/internal/domain"
)

const DefaultTTL = 2 * time.Hour

type ResolvedLink struct {
	URL        string    `json:"url"`
	RequestID  string    `json:"requestId"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

type LastError struct {
	RequestID string             `json:"requestId"`
	Kind      domain.FailureKind `json:"kind"`
	Message   string             `json:"message,omitempty"`
	At        time.Time          `json:"at"`
}

// Entry is a snapshot of one media's state.
type Entry struct {
	MediaID    string                   `json:"mediaId"`
	Candidates []domain.StreamCandidate `json:"candidates"`
	Selected   *domain.StreamCandidate  `json:"selected,omitempty"`
	Resolved   *ResolvedLink            `json:"resolved,omitempty"`
	Generation uint64                   `json:"generation"`
	InFlight   bool                     `json:"inFlight"`
	InFlightID string                   `json:"inFlightRequestId,omitempty"`
	LastError  *LastError               `json:"lastError,omitempty"`
	UpdatedAt  time.Time                `json:"updatedAt"`
}

// Ticket identifies one resolution started through Begin.
type Ticket struct {
	MediaID    string
	RequestID  string
	Generation uint64
}

type entry struct {
	Entry
	cancel context.CancelFunc
}

type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) entryLocked(mediaID string) *entry {
	e, ok := s.entries[mediaID]
	if !ok {
		e = &entry{Entry: Entry{MediaID: mediaID}}
		s.entries[mediaID] = e
	}
	return e
}

// SetCandidates replaces the candidate list of a media. The resolved link
// and any running resolution are left alone.
func (s *Store) SetCandidates(mediaID string, candidates []domain.StreamCandidate) {
	if mediaID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(mediaID)
	e.Candidates = append([]domain.StreamCandidate(nil), candidates...)
	e.UpdatedAt = s.now()
}

// Begin starts a new generation for mediaID and returns a context derived
// from parent. The context of a superseded resolution for the same media is
// cancelled. The returned context is cancelled by Complete or Forget.
func (s *Store) Begin(parent context.Context, mediaID, requestID string, candidate domain.StreamCandidate) (Ticket, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(mediaID)
	if e.cancel != nil {
		e.cancel()
	}
	e.Generation++
	e.cancel = cancel
	e.InFlight = true
	e.InFlightID = requestID
	selected := candidate
	for _, known := range e.Candidates {
		if known.URL == candidate.URL {
			selected = known
			break
		}
	}
	e.Selected = &selected
	e.UpdatedAt = s.now()

	return Ticket{MediaID: mediaID, RequestID: requestID, Generation: e.Generation}, ctx
}

// Complete writes the result of a resolution back. It reports false and
// changes nothing when a newer generation exists or the media was forgotten.
// A failure never clears a previously resolved link.
func (s *Store) Complete(ticket Ticket, result domain.ResolutionResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[ticket.MediaID]
	if !ok || e.Generation != ticket.Generation {
		return false
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	now := s.now()
	e.InFlight = false
	e.InFlightID = ""
	e.UpdatedAt = now

	switch outcome := result.Outcome.(type) {
	case domain.Done:
		e.Resolved = &ResolvedLink{URL: outcome.DownloadURL, RequestID: ticket.RequestID, ResolvedAt: now}
		e.LastError = nil
	case domain.Failed:
		lastErr := &LastError{RequestID: ticket.RequestID, Kind: outcome.Kind, At: now}
		if outcome.Err != nil {
			lastErr.Message = outcome.Err.Error()
		}
		e.LastError = lastErr
	}
	return true
}

func (s *Store) Get(mediaID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[mediaID]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Forget drops the media and cancels its running resolution.
func (s *Store) Forget(mediaID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[mediaID]
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(s.entries, mediaID)
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes idle entries not updated within the TTL.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, e := range s.entries {
		if e.InFlight || e.UpdatedAt.After(cutoff) {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	return removed
}

func (s *Store) StartSweeper(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Sweep(); removed > 0 && logger != nil {
					logger.Debug("session entries expired", slog.Int("removed", removed))
				}
			}
		}
	}()
}

func (e *entry) snapshot() Entry {
	out := e.Entry
	out.Candidates = append([]domain.StreamCandidate{}, e.Candidates...)
	if e.Selected != nil {
		selected := *e.Selected
		out.Selected = &selected
	}
	if e.Resolved != nil {
		resolved := *e.Resolved
		out.Resolved = &resolved
	}
	if e.LastError != nil {
		lastErr := *e.LastError
		out.LastError = &lastErr
	}
	return out
}
