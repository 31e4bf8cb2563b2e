package relay

import (
	"sync"

	"github.com/hupe1980/browsermesh/protocol"
)

// Registry tracks at most one live connection per role. All methods are safe
// for concurrent invocation from multiple connection goroutines and never
// block on network I/O, so holding the internal mutex cannot stall unrelated
// connections.
type Registry struct {
	mu         sync.RWMutex
	adapter    *Conn
	controller *Conn
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Assign stores c as the occupant of role, silently evicting any previous
// occupant. Last hello wins; the evicted connection is not closed, so the
// system tolerates reconnects without an explicit goodbye.
func (r *Registry) Assign(role protocol.Role, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch role {
	case protocol.RoleAdapter:
		r.adapter = c
	case protocol.RoleController:
		r.controller = c
	}
}

// PeerOf returns the occupant of the opposite role's slot: the adapter asks
// for the controller and vice versa. An absent peer is a normal state the
// caller must handle, not an error. The returned reference is a
// point-in-time snapshot; the peer may disconnect before a send to it
// completes.
func (r *Registry) PeerOf(role protocol.Role) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c *Conn
	switch role {
	case protocol.RoleAdapter:
		c = r.controller
	case protocol.RoleController:
		c = r.adapter
	}
	return c, c != nil
}

// Clear removes the slot occupant only if it is still c, so a stale teardown
// cannot evict a newer connection that reused the same role.
func (r *Registry) Clear(role protocol.Role, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch role {
	case protocol.RoleAdapter:
		if r.adapter == c {
			r.adapter = nil
		}
	case protocol.RoleController:
		if r.controller == c {
			r.controller = nil
		}
	}
}

// Snapshot reads occupancy flags for both roles without mutating.
func (r *Registry) Snapshot() protocol.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return protocol.Status{
		AdapterConnected:    r.adapter != nil,
		ControllerConnected: r.controller != nil,
	}
}
