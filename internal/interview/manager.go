package interview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/ckd-assistant/internal/catalog"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// DefaultTTL is how long an idle session is kept before Sweep removes it.
const DefaultTTL = 2 * time.Hour

// Snapshot is a read-only view of a session at one point in time.
type Snapshot struct {
	ID       string          `json:"session_id"`
	Status   Status          `json:"status"`
	Index    int             `json:"index"`
	Total    int             `json:"total"`
	Question *types.Question `json:"question,omitempty"`
	Answers  []types.Answer  `json:"answers"`
}

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Manager holds independently keyed sessions. Each session has a single writer at a
// time; the only state shared between sessions is the read-only catalog source.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	source   catalog.Source
	ttl      time.Duration
	logger   *slog.Logger
}

// NewManager creates a manager that binds new sessions to the source's current catalog.
func NewManager(source catalog.Source, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		sessions: make(map[string]*entry),
		source:   source,
		ttl:      ttl,
		logger:   logging.New("interview"),
	}
}

// Create starts a new session and poses its first question.
func (m *Manager) Create(ctx context.Context) (Snapshot, error) {
	c, err := m.source.Current()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load question catalog: %w", err)
	}

	s := NewSession(uuid.NewString(), c)
	s.Pose()

	m.mu.Lock()
	m.sessions[s.ID] = &entry{session: s}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "session created", slog.String("session_id", s.ID), slog.Int("questions", c.Len()))
	return snapshot(s), nil
}

// With runs fn with exclusive access to the session after syncing it with the
// current catalog. A catalog change resets the session before fn runs.
func (m *Manager) With(ctx context.Context, id string, fn func(*Session) error) error {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return &SessionNotFoundError{ID: id}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m.sync(ctx, e.session)
	return fn(e.session)
}

// Prompt poses the next question if none is pending and returns the session view.
func (m *Manager) Prompt(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	err := m.With(ctx, id, func(s *Session) error {
		s.Pose()
		snap = snapshot(s)
		return nil
	})
	return snap, err
}

// Submit records an answer for the pending question and poses the next one.
func (m *Manager) Submit(ctx context.Context, id, answer string) (Snapshot, error) {
	var snap Snapshot
	err := m.With(ctx, id, func(s *Session) error {
		if err := s.SubmitAnswer(answer); err != nil {
			snap = snapshot(s)
			return err
		}
		s.Pose()
		snap = snapshot(s)
		return nil
	})
	return snap, err
}

// Get returns the session view without changing state.
func (m *Manager) Get(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	err := m.With(ctx, id, func(s *Session) error {
		snap = snapshot(s)
		return nil
	})
	return snap, err
}

// Reset clears the session and poses the first question again.
func (m *Manager) Reset(ctx context.Context, id string) (Snapshot, error) {
	var snap Snapshot
	err := m.With(ctx, id, func(s *Session) error {
		s.Reset()
		s.Pose()
		snap = snapshot(s)
		return nil
	})
	return snap, err
}

// Delete aborts and discards a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return &SessionNotFoundError{ID: id}
	}
	delete(m.sessions, id)
	m.logger.InfoContext(ctx, "session deleted", slog.String("session_id", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle for longer than the manager's TTL and returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, e := range m.sessions {
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.session.UpdatedAt())
		e.mu.Unlock()
		if idle > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep periodically until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := m.Sweep(now); n > 0 {
					m.logger.Info("swept idle sessions", slog.Int("removed", n))
				}
			}
		}
	}()
}

func (m *Manager) sync(ctx context.Context, s *Session) {
	c, err := m.source.Current()
	if err != nil {
		m.logger.WarnContext(ctx, "failed to reload question catalog", slog.String("error", err.Error()))
		return
	}
	if err := s.Sync(c); err != nil {
		m.logger.WarnContext(ctx, "session reset", slog.String("session_id", s.ID), slog.String("reason", err.Error()))
		s.Pose()
	}
}

func snapshot(s *Session) Snapshot {
	q, _ := s.NextPrompt()
	return Snapshot{
		ID:       s.ID,
		Status:   s.Status(),
		Index:    s.CurrentIndex(),
		Total:    s.Total(),
		Question: q,
		Answers:  s.CollectedAnswers(),
	}
}
