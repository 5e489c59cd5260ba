package presence

import "sync"

// entry is a copy of one registry slot taken for fan-out.
type entry struct {
	id     string
	handle Writable
}

// Registry holds the open subscriber handles: a flat global set and a
// per-user multi-map. It performs no I/O.
type Registry struct {
	mu     sync.RWMutex
	global map[string]Writable            // subscriberID -> handle
	users  map[string]map[string]Writable // userID -> subscriberID -> handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		global: make(map[string]Writable),
		users:  make(map[string]map[string]Writable),
	}
}

// AddGlobal inserts a global subscriber. A duplicate id replaces the old handle.
func (r *Registry) AddGlobal(id string, h Writable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.global[id] = h
}

// AddForUser inserts a subscriber under userID, creating the user's map on demand.
func (r *Registry) AddForUser(userID, id string, h Writable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.users[userID] == nil {
		r.users[userID] = make(map[string]Writable)
	}
	r.users[userID][id] = h
}

// RemoveGlobal deletes a global subscriber. It reports whether anything was removed.
func (r *Registry) RemoveGlobal(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.global[id]; !exists {
		return false
	}
	delete(r.global, id)
	return true
}

// RemoveForUser deletes one of a user's subscribers and drops the user key
// once the last one is gone.
func (r *Registry) RemoveForUser(userID, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userSubs, exists := r.users[userID]
	if !exists {
		return false
	}

	_, removed := userSubs[id]
	delete(userSubs, id)

	// Clean up empty user map
	if len(userSubs) == 0 {
		delete(r.users, userID)
	}
	return removed
}

// CountGlobal returns the number of global subscribers.
func (r *Registry) CountGlobal() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.global)
}

// CountForUser returns the number of subscribers for userID, zero if unknown.
func (r *Registry) CountForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userID])
}

// HasUser reports whether userID currently has a key in the user registry.
func (r *Registry) HasUser(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.users[userID]
	return exists
}

// UserCounts returns a copy of per-user subscriber counts.
func (r *Registry) UserCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int, len(r.users))
	for userID, userSubs := range r.users {
		counts[userID] = len(userSubs)
	}
	return counts
}

// globalEntries copies the global set so writes happen outside the lock.
func (r *Registry) globalEntries() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]entry, 0, len(r.global))
	for id, h := range r.global {
		result = append(result, entry{id: id, handle: h})
	}
	return result
}

// userEntries copies one user's subscribers.
func (r *Registry) userEntries(userID string) []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userSubs, exists := r.users[userID]
	if !exists {
		return nil
	}

	result := make([]entry, 0, len(userSubs))
	for id, h := range userSubs {
		result = append(result, entry{id: id, handle: h})
	}
	return result
}
