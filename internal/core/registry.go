package core

import "sync"

// Registry counts live connections per user. A user without an entry is offline.
type Registry struct {
	mu     sync.Mutex
	counts map[int64]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counts: make(map[int64]int)}
}

// Register adds one connection for the user and reports whether it is the first.
func (r *Registry) Register(userID int64) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[userID]++
	return r.counts[userID] == 1
}

// Unregister removes one connection for the user and reports whether it was the last.
// The entry is deleted at zero. Unregistering an absent user is a no-op.
func (r *Registry) Unregister(userID int64) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.counts[userID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(r.counts, userID)
		return true
	}
	r.counts[userID] = n - 1
	return false
}

// Count returns the number of live connections of the user.
func (r *Registry) Count(userID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[userID]
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID int64) bool {
	return r.Count(userID) > 0
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counts)
}
