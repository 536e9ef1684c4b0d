package server

import (
	"sync"

	"github.com/roach88/onelane/internal/bridge"
)

// Registry maps actor ids to their live connection.
//
// Lookup is called by the Scheduler with the bridge lock held, so the lock
// order is always bridge then registry. Registry methods never call into
// the Bridge.
//
// Thread-safety: all methods are safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	conns map[bridge.ActorID]bridge.Inviter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[bridge.ActorID]bridge.Inviter)}
}

// Register binds actor to c and returns the connection it replaced, if any.
func (r *Registry) Register(actor bridge.ActorID, c bridge.Inviter) bridge.Inviter {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[actor]
	r.conns[actor] = c
	if prev == c {
		return nil
	}
	return prev
}

// Unregister removes actor only while c still owns it. It reports whether
// the entry was removed.
func (r *Registry) Unregister(actor bridge.ActorID, c bridge.Inviter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[actor]; !ok || cur != c {
		return false
	}
	delete(r.conns, actor)
	return true
}

// Lookup implements bridge.Directory.
func (r *Registry) Lookup(actor bridge.ActorID) (bridge.Inviter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[actor]
	return c, ok
}

// Len returns the number of registered actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
