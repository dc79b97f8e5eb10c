package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the in-memory session table. Sessions expire after sitting
// idle for the configured TTL; expiry drops in-memory state only (the
// journal keeps the thread for later rehydration).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	done     chan struct{}
}

// NewRegistry creates a registry sweeping idle sessions at ttl granularity.
func NewRegistry(ttl time.Duration) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Create registers a new session for the given group and returns it.
func (r *Registry) Create(groupID string) *Session {
	s := New(uuid.New().String(), groupID)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Adopt registers a rehydrated session under its original id.
func (r *Registry) Adopt(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Delete drops a session from the registry.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Stop halts the sweeper.
func (r *Registry) Stop() {
	close(r.done)
}

func (r *Registry) sweep() {
	interval := r.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.ttl)
			r.mu.Lock()
			for id, s := range r.sessions {
				if s.IdleSince().Before(cutoff) {
					delete(r.sessions, id)
					log.Printf("Session %s expired", id)
				}
			}
			r.mu.Unlock()
		}
	}
}
