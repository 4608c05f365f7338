package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spektr-org/pivot/engine"
)

// session wraps an engine.Session with the lock that serializes the
// requests made against it.
type session struct {
	mu       sync.Mutex
	id       string
	engine   *engine.Session
	created  time.Time
	lastUsed time.Time
}

// sessionStore maps session ids to sessions.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*session)}
}

func (st *sessionStore) create(reg *engine.Registry, opts ...engine.Option) *session {
	now := time.Now()
	s := &session{
		id:       uuid.New().String(),
		engine:   engine.NewSession(reg, opts...),
		created:  now,
		lastUsed: now,
	}
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

func (st *sessionStore) get(id string) (*session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *sessionStore) delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// expire drops sessions idle for longer than ttl and returns how many
// were removed.
func (st *sessionStore) expire(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		s.mu.Lock()
		idle := s.lastUsed.Before(cutoff)
		s.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
