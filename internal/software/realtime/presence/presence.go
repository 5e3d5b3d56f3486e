// Package presence tracks which users currently hold open connections.
package presence

import "sync"

// Registry maps a user id to its set of connection ids. A user is present
// only while that set is non-empty; empty sets are deleted.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{users: make(map[string]map[string]struct{})}
}

// Add records connID for userID. It reports whether this is the user's first connection.
func (r *Registry) Add(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	conns[connID] = struct{}{}
	return !ok
}

// Remove forgets connID. It reports whether the user went offline.
func (r *Registry) Remove(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// Online reports whether userID holds at least one connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// Connections returns a copy of the user's connection ids.
func (r *Registry) Connections(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	return out
}

// Counts returns the number of online users and open connections.
func (r *Registry) Counts() (users, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.users {
		conns += len(c)
	}
	return len(r.users), conns
}
