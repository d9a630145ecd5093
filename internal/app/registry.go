package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"que-backend/internal/core"
	"que-backend/internal/domain"
)

// Registry maps durable client identities to their current live
// session. Bind overwrites unconditionally, so a reconnecting client
// supersedes its stale handle; the reverse index is kept in lockstep
// for the O(1) session -> identity lookup disconnect needs.
type Registry struct {
	mu       sync.RWMutex
	byClient map[domain.ClientID]core.Session
	byConn   map[core.Session]domain.ClientID
}

func NewRegistry() *Registry {
	return &Registry{
		byClient: make(map[domain.ClientID]core.Session),
		byConn:   make(map[core.Session]domain.ClientID),
	}
}

// Bind maps id to s, replacing any prior mapping for either side.
// It returns the session previously bound to id, if any.
func (r *Registry) Bind(id domain.ClientID, s core.Session) (core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, had := r.byClient[id]
	if had {
		delete(r.byConn, old)
	}
	if prev, ok := r.byConn[s]; ok && prev != id {
		delete(r.byClient, prev)
	}
	r.byClient[id] = s
	r.byConn[s] = id
	log.Debug().Str("module", "app.registry").Str("client", string(id)).Bool("rebind", had).Msg("bound session")
	return old, had
}

func (r *Registry) Resolve(id domain.ClientID) (core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byClient[id]
	return s, ok
}

func (r *Registry) ClientOf(s core.Session) (domain.ClientID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byConn[s]
	return id, ok
}

func (r *Registry) Unbind(id domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byClient[id]; ok {
		delete(r.byConn, s)
		delete(r.byClient, id)
		log.Debug().Str("module", "app.registry").Str("client", string(id)).Msg("unbound")
	}
}

// UnbindSession removes the mapping whose current session is s.
// At most one identity can map to a live session at a time.
func (r *Registry) UnbindSession(s core.Session) (domain.ClientID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byConn[s]
	if !ok {
		return "", false
	}
	delete(r.byConn, s)
	delete(r.byClient, id)
	log.Debug().Str("module", "app.registry").Str("client", string(id)).Msg("unbound session")
	return id, true
}
