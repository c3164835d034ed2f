package registry

import (
	"sync"
)

// Binding ties a websocket connection to the single room/user it acts as.
type Binding struct {
	RoomID   string
	Username string
}

// Registry is the only source of truth for "which connection is this user".
// Every cleanup path (explicit leave and disconnect) goes through it, so the
// bind/unbind pair is the synchronization point that decides which of a
// disconnect/reconnect race wins.
type Registry struct {
	mu       sync.Mutex
	bindings map[string]Binding // connectionID -> binding
}

func New() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// Bind records the binding for connID, overwriting any prior one. The prior
// binding, if any, is returned so the caller can emit a leave for the old
// room.
func (r *Registry) Bind(connID, roomID, username string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.bindings[connID]
	r.bindings[connID] = Binding{RoomID: roomID, Username: username}
	return prev, had
}

// Unbind removes and returns the binding for connID. Safe to call multiple
// times; subsequent calls report ok=false.
func (r *Registry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[connID]
	if ok {
		delete(r.bindings, connID)
	}
	return b, ok
}

func (r *Registry) Lookup(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[connID]
	return b, ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bindings)
}
