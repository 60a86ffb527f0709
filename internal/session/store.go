package session

import (
	"sync"
	"time"
)

// Store maps session IDs to live sessions. Distinct sessions can be accessed
// concurrently; the store lock covers only the map itself.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it in Idle if absent.
// The second return reports whether the session already existed.
func (st *Store) GetOrCreate(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s, true
	}
	s := New(id)
	st.sessions[id] = s
	return s, false
}

// Get returns the session for id, or nil.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// Destroy removes the session and cancels any active stream. Idempotent.
func (st *Store) Destroy(id string) {
	st.mu.Lock()
	s := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if s == nil {
		return
	}
	if h := s.Stream(); h != nil {
		h.Cancel()
	}
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Snapshots returns diagnostics for every live session.
func (st *Store) Snapshots() []Snapshot {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// ReapIdle destroys sessions whose last activity is older than maxAge and
// returns their IDs. Used by the optional idle-session reaper.
func (st *Store) ReapIdle(maxAge time.Duration) []string {
	cutoff := time.Now().Add(-maxAge)

	st.mu.RLock()
	var stale []string
	for id, s := range st.sessions {
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	st.mu.RUnlock()

	for _, id := range stale {
		st.Destroy(id)
	}
	return stale
}
