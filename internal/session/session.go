// Package session provides the process-wide session store for active calls.
//
// Sessions are kept in memory for the process lifetime; durability is out of
// scope for triage correctness within one call. The store is safe for
// concurrent use from many calls: the registry lock is only held for map
// lookup and insert, while each session carries its own lock that the
// orchestrator holds for the duration of a turn.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/JoyZhuoz/CareLink-sub000/internal/models"
)

// Seed carries the fields merged into a freshly created session.
type Seed struct {
	SubjectID string
}

// Handle pairs a session with its per-session lock. Callers must hold the
// lock while reading or mutating the session during a turn.
type Handle struct {
	sync.Mutex
	Session *models.Session
}

// Store defines the session registry contract the orchestrator depends on.
type Store interface {
	// GetOrCreate returns the handle for sessionID, creating a new session
	// seeded from seed if none exists. It is idempotent: an existing session
	// is returned unchanged. The second return value reports creation.
	GetOrCreate(sessionID string, seed Seed) (*Handle, bool)

	// Get returns the handle for an existing session, or
	// models.ErrSessionNotFound if the id is unknown.
	Get(sessionID string) (*Handle, error)

	// Len returns the number of sessions currently tracked.
	Len() int
}

// InMemoryStore is the reference Store implementation: a mutex-guarded map
// keyed by opaque session id.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Handle
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*Handle)}
}

// GetOrCreate returns the handle for sessionID, creating the session on first
// access. New sessions start in the IDENTITY stage with a GREEN triage level.
func (s *InMemoryStore) GetOrCreate(sessionID string, seed Seed) (*Handle, bool) {
	s.mu.RLock()
	h, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return h, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the write lock: another turn may have raced us here.
	if h, ok := s.sessions[sessionID]; ok {
		return h, false
	}

	h = &Handle{Session: &models.Session{
		SessionID:      sessionID,
		SubjectID:      seed.SubjectID,
		Stage:          models.StageIdentity,
		TriageLevel:    models.TriageGreen,
		AskedQuestions: make(map[string]bool),
		CreatedAt:      time.Now(),
	}}
	s.sessions[sessionID] = h
	slog.Debug("InMemoryStore.GetOrCreate: session created", "sessionID", sessionID, "subjectID", seed.SubjectID)
	return h, true
}

// Get returns the handle for an existing session.
func (s *InMemoryStore) Get(sessionID string) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[sessionID]
	if !ok {
		slog.Debug("InMemoryStore.Get: session not found", "sessionID", sessionID)
		return nil, models.ErrSessionNotFound
	}
	return h, nil
}

// Len returns the number of sessions currently tracked.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
