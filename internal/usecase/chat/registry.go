package chat

import (
	"sync"

	"github.com/google/uuid"

	"github.com/leafwise/tomatodoc/internal/domain"
	domchat "github.com/leafwise/tomatodoc/internal/domain/chat"
)

// Registry holds live sessions in memory. Session state is not
// persisted; a restart starts everyone fresh.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domchat.Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*domchat.Session)}
}

// Create registers a new session and returns it.
func (r *Registry) Create() *domchat.Session {
	sess := domchat.NewSession(uuid.NewString())

	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()

	return sess
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*domchat.Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
