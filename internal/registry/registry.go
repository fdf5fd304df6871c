// Package registry keeps the process-wide view of active stream sessions.
// It is the source the control API and the websocket hub read from.
package registry

import (
	"sort"
	"sync"

	"magnetcast/internal/domain"
)

type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]domain.Snapshot
	onChange func(domain.Snapshot)
}

func New() *Registry {
	return &Registry{sessions: make(map[domain.SessionID]domain.Snapshot)}
}

// OnChange installs a hook invoked after every Register and Update, outside
// the registry lock. Used to push snapshots to websocket subscribers.
func (r *Registry) OnChange(fn func(domain.Snapshot)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

func (r *Registry) Register(snap domain.Snapshot) {
	r.mu.Lock()
	r.sessions[snap.ID] = snap
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (r *Registry) Update(id domain.SessionID, snap domain.Snapshot) {
	r.mu.Lock()
	if _, ok := r.sessions[id]; !ok {
		r.mu.Unlock()
		return
	}
	r.sessions[id] = snap
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

func (r *Registry) Unregister(id domain.SessionID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns the snapshot for id, if registered.
func (r *Registry) Get(id domain.SessionID) (domain.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.sessions[id]
	return snap, ok
}

// List returns all registered snapshots ordered by session id.
func (r *Registry) List() []domain.Snapshot {
	r.mu.RLock()
	out := make([]domain.Snapshot, 0, len(r.sessions))
	for _, snap := range r.sessions {
		out = append(out, snap)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
