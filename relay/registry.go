package relay

import (
	"sync"

	"github.com/samber/lo"
)

// Registry is the set of live host-side sessions. It is mutated from the
// accept loop (Add) and from each session's own read loop (Remove); the
// mutex is held only for the structural change, never across socket I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

// Remove deletes a session and reports whether it was present. A session is
// removed exactly once, by its own read loop on exit; Remove tolerates the
// shutdown path having already cleared the map.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the current sessions so callers can write to them without
// holding the registry lock.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.sessions)
}

// CloseAll closes every connection under the lock and empties the registry.
// Used only by shutdown, after the listener has stopped accepting; the read
// loops unblock on the closed sockets and exit on their own.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.sessions)
	for _, s := range r.sessions {
		_ = s.Close()
	}
	r.sessions = make(map[string]*Session)
	return n
}
