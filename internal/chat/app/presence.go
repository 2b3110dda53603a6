package app

import "sync"

// PresenceTracker maps userID to the set of its live connection ids. A user
// is online iff the set is non-empty. Safe for concurrent connect and
// disconnect from multiple devices of the same user.
type PresenceTracker struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

// NewPresenceTracker create an empty PresenceTracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{conns: make(map[string]map[string]struct{})}
}

// Add registers a connection under the user and reports whether it was the
// user's first live connection (offline -> online transition).
func (p *PresenceTracker) Add(userID, connID string) (first bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.conns[userID]
	if set == nil {
		set = make(map[string]struct{})
		p.conns[userID] = set
	}
	first = len(set) == 0
	set[connID] = struct{}{}
	return first
}

// Remove deregisters a connection and reports whether it was the user's
// last live connection (online -> offline transition).
func (p *PresenceTracker) Remove(userID, connID string) (last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	set := p.conns[userID]
	if set == nil {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(p.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (p *PresenceTracker) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[userID]) > 0
}

// Connections returns the number of live connections for the user.
func (p *PresenceTracker) Connections(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[userID])
}
