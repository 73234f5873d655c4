// Package interview implements the one-question-at-a-time interview state machine.
package interview

import (
	"strings"
	"time"

	"github.com/jonathan/ckd-assistant/internal/catalog"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// Status is the state of an interview session.
type Status string

const (
	// StatusCollecting means no answer is pending
	StatusCollecting Status = "collecting"
	// StatusAwaitingResponse means a question has been posed and its answer is pending
	StatusAwaitingResponse Status = "awaiting_response"
	// StatusComplete means every question has been answered
	StatusComplete Status = "complete"
)

// Session is a single patient's interview against one catalog snapshot.
// A Session is not safe for concurrent use; Manager serialises access per session.
//
// Invariant: index == len(answers) while status != complete, and the session is
// complete iff index == catalog.Len().
type Session struct {
	ID        string
	catalog   *catalog.Catalog
	index     int
	answers   []types.Answer
	status    Status
	updatedAt time.Time
}

// NewSession starts a session in the collecting state.
func NewSession(id string, c *catalog.Catalog) *Session {
	s := &Session{ID: id, catalog: c}
	s.Reset()
	return s
}

// NextPrompt returns the question to display, or false once the session is complete.
// It never changes state.
func (s *Session) NextPrompt() (*types.Question, bool) {
	if s.status == StatusComplete {
		return nil, false
	}
	q, ok := s.catalog.At(s.index)
	if !ok {
		return nil, false
	}
	return &q, true
}

// Pose moves a collecting session to awaiting_response and returns the posed question.
// A session that is already awaiting returns the same question. When the catalog is
// exhausted the session becomes complete and nil is returned.
func (s *Session) Pose() *types.Question {
	switch s.status {
	case StatusComplete:
		return nil
	case StatusAwaitingResponse:
		q, _ := s.NextPrompt()
		return q
	}

	q, ok := s.catalog.At(s.index)
	if !ok {
		s.setStatus(StatusComplete)
		return nil
	}
	s.setStatus(StatusAwaitingResponse)
	return &q
}

// SubmitAnswer records a response to the posed question and advances.
// It fails with InvalidStateError unless a question is awaiting a response, and with
// EmptyAnswerError for a blank response. State is unchanged on error.
func (s *Session) SubmitAnswer(text string) error {
	if s.status != StatusAwaitingResponse {
		return &InvalidStateError{Op: "submit answer", Status: s.status}
	}
	q, _ := s.catalog.At(s.index)

	response := strings.TrimSpace(text)
	if response == "" {
		return &EmptyAnswerError{Question: q.Text}
	}

	s.answers = append(s.answers, types.Answer{
		Index:    q.Number,
		Question: q.Prompt(),
		Response: response,
	})
	s.index++
	s.setStatus(StatusCollecting)

	if s.index >= s.catalog.Len() {
		s.setStatus(StatusComplete)
	}
	return nil
}

// IsComplete reports whether every question has been answered.
func (s *Session) IsComplete() bool {
	return s.status == StatusComplete
}

// CollectedAnswers returns a snapshot of the answers recorded so far.
func (s *Session) CollectedAnswers() []types.Answer {
	out := make([]types.Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Status returns the current status.
func (s *Session) Status() Status {
	return s.status
}

// CurrentIndex returns the number of accepted answers.
func (s *Session) CurrentIndex() int {
	return s.index
}

// Total returns the number of questions in the session's catalog.
func (s *Session) Total() int {
	return s.catalog.Len()
}

// Fingerprint identifies the catalog the session is bound to.
func (s *Session) Fingerprint() string {
	return s.catalog.Fingerprint
}

// UpdatedAt returns the time of the last state change.
func (s *Session) UpdatedAt() time.Time {
	return s.updatedAt
}

// Reset clears all answers and returns to the first question.
func (s *Session) Reset() {
	s.index = 0
	s.answers = nil
	if s.catalog.Len() == 0 {
		s.setStatus(StatusComplete)
		return
	}
	s.setStatus(StatusCollecting)
}

// Sync rebinds the session to c. If c differs from the bound catalog the session is
// force reset and a CatalogMismatchError describing the discarded progress is returned.
func (s *Session) Sync(c *catalog.Catalog) error {
	if c == nil || c.Fingerprint == s.catalog.Fingerprint {
		return nil
	}
	err := &CatalogMismatchError{
		SessionID: s.ID,
		Previous:  s.catalog.Fingerprint,
		Current:   c.Fingerprint,
		Discarded: len(s.answers),
	}
	s.catalog = c
	s.Reset()
	return err
}

func (s *Session) setStatus(status Status) {
	s.status = status
	s.updatedAt = time.Now()
}
