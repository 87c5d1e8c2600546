package session

import (
	"sync"
	"time"
)

const (
	maxTurns    = 10
	maxSessions = 1000
)

// Turn is one query/response exchange kept as short-term memory.
type Turn struct {
	Query     string
	Response  string
	Timestamp time.Time
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type entry struct {
	turns   []Turn
	touched time.Time
}

// Store keeps the last turns per student and subject. It stands in for
// true conversational memory: bounded to 10 turns per key and 1000
// keys total, evicting the least recently used session when full.
// Reads are copy-out, so callers never share the internal slices.
type Store struct {
	clock Clock

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return NewStoreWithClock(realClock{})
}

// NewStoreWithClock creates a Store with a custom clock (for testing).
func NewStoreWithClock(clock Clock) *Store {
	return &Store{
		clock:    clock,
		sessions: make(map[string]*entry),
	}
}

func sessionKey(studentID, subject string) string {
	return studentID + "\x00" + subject
}

// Append records one exchange, trimming the session to the last 10
// turns.
func (s *Store) Append(studentID, subject, query, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(studentID, subject)
	now := s.clock.Now()

	e, ok := s.sessions[key]
	if !ok {
		if len(s.sessions) >= maxSessions {
			s.evictOldest()
		}
		e = &entry{}
		s.sessions[key] = e
	}

	e.turns = append(e.turns, Turn{Query: query, Response: response, Timestamp: now})
	if len(e.turns) > maxTurns {
		e.turns = e.turns[len(e.turns)-maxTurns:]
	}
	e.touched = now
}

// Recent returns the stored turns for the student and subject, oldest
// first. Nil when the session is unknown.
func (s *Store) Recent(studentID, subject string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionKey(studentID, subject)]
	if !ok {
		return nil
	}
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Clear drops the session for the student and subject.
func (s *Store) Clear(studentID, subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(studentID, subject))
}

// evictOldest removes the least recently touched session.
// Caller must hold the write lock.
func (s *Store) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, e := range s.sessions {
		if first || e.touched.Before(oldest) {
			oldestKey, oldest = key, e.touched
			first = false
		}
	}
	if oldestKey != "" {
		delete(s.sessions, oldestKey)
	}
}
