package arena

import (
	"math/rand"
	"sort"

	"github.com/brensch/snekarena/game"
)

// Registry maps session ids to sessions. It is the only place sessions are
// created or destroyed, and it is owned by the arena dispatcher.
type Registry struct {
	dims     game.Dimensions
	rng      *rand.Rand
	sessions map[string]*game.Session
}

// NewRegistry returns an empty registry that builds sessions with dims.
func NewRegistry(dims game.Dimensions, rng *rand.Rand) *Registry {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Registry{
		dims:     dims,
		rng:      rng,
		sessions: make(map[string]*game.Session),
	}
}

// GetOrCreate returns the session registered under id, constructing an
// empty inactive one when absent. created reports which happened.
func (r *Registry) GetOrCreate(id string) (s *game.Session, created bool) {
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s = game.NewSession(id, r.dims, rand.New(rand.NewSource(r.rng.Int63())))
	r.sessions[id] = s
	return s, true
}

// Create registers a session under a fresh random id.
func (r *Registry) Create() *game.Session {
	for {
		id := game.NewSessionID(r.rng)
		if _, taken := r.sessions[id]; taken {
			continue
		}
		s, _ := r.GetOrCreate(id)
		return s
	}
}

// Lookup returns the session for id without creating it.
func (r *Registry) Lookup(id string) (*game.Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops the session entry.
func (r *Registry) Remove(id string) {
	delete(r.sessions, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return len(r.sessions)
}

// IDs returns the registered session ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
