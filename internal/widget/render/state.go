package render

import "sync"

// StateStore holds per-widget local state keyed by (instanceID, stateKey).
// It is an explicit store owned by the host, disposed with the instance's
// lifecycle — not a module-level map that accumulates entries across
// unrelated instances.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]map[string]any
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]map[string]any)}
}

// Set stores a value for one instance's state key.
func (s *StateStore) Set(instanceID, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[instanceID]
	if !ok {
		st = make(map[string]any)
		s.states[instanceID] = st
	}
	st[key] = value
}

// Get returns the value for one instance's state key.
func (s *StateStore) Get(instanceID, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[instanceID]
	if !ok {
		return nil, false
	}
	v, ok := st[key]
	return v, ok
}

// Snapshot returns a copy of one instance's state map for injection into a
// render context.
func (s *StateStore) Snapshot(instanceID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[instanceID]
	if !ok {
		return map[string]any{}
	}
	out := make(map[string]any, len(st))
	for k, v := range st {
		out[k] = v
	}
	return out
}

// Dispose drops all state for an instance. Called when the instance is
// removed from the dashboard.
func (s *StateStore) Dispose(instanceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, instanceID)
}
