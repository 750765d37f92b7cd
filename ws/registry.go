package ws

import (
	"sync"
)

// Registry is the in-memory store of live connections. It tracks every open
// session by sid plus the delivery binding from username to the channel that
// pushes for it. All state is process memory, nothing is persisted.
type Registry struct {
	sync.RWMutex

	// sid -> handler, every live session.
	sessions map[string]*Handler

	// username -> handler, the single addressable delivery channel per user.
	byName map[string]*Handler
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Handler),
		byName:   make(map[string]*Handler),
	}
}

func (r *Registry) add(h *Handler) {
	r.Lock()
	r.sessions[h.sid] = h
	r.Unlock()
}

// remove drops a closed session. Delivery bindings are matched by handler
// identity: closing a channel that was already replaced by a newer
// registration must not evict the username's current binding.
func (r *Registry) remove(h *Handler) {
	r.Lock()
	defer r.Unlock()
	delete(r.sessions, h.sid)
	for name, bound := range r.byName {
		if bound == h {
			delete(r.byName, name)
		}
	}
}

// bind makes `h` the delivery channel for `username`. Last registration
// wins; a displaced handler stays open but becomes unreachable for pushes.
func (r *Registry) bind(username string, h *Handler) {
	r.Lock()
	r.byName[username] = h
	r.Unlock()
}

// unbind removes the delivery binding, no-op when absent.
func (r *Registry) unbind(username string) bool {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.byName[username]; ok {
		delete(r.byName, username)
		return true
	}
	return false
}

func (r *Registry) lookup(username string) *Handler {
	r.RLock()
	h := r.byName[username]
	r.RUnlock()
	return h
}

func (r *Registry) size() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.sessions)
}

func (r *Registry) close() {
	r.RLock()
	defer r.RUnlock()
	for _, h := range r.sessions {
		h.close(ServerStop)
	}
}
