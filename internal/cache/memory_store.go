package cache

import "sync"

// MemoryStore is an in-memory Store for tests. It records saves so tests
// can assert write-through behavior, and can inject save failures.
type MemoryStore struct {
	mu sync.Mutex

	entries   map[string]Entry
	SaveCalls int
	SaveErr   error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Seed pre-populates the store, as if a previous session had persisted
// these entries.
func (s *MemoryStore) Seed(entries map[string]Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range entries {
		s.entries[id] = entry
	}
}

// Load returns a copy of the current entries.
func (s *MemoryStore) Load() (map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Entry, len(s.entries))
	for id, entry := range s.entries {
		out[id] = entry
	}
	return out, nil
}

// Save replaces the stored entries.
func (s *MemoryStore) Save(entries map[string]Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SaveCalls++
	if s.SaveErr != nil {
		return s.SaveErr
	}

	s.entries = make(map[string]Entry, len(entries))
	for id, entry := range entries {
		s.entries[id] = entry
	}
	return nil
}

// Persisted returns the currently persisted entries.
func (s *MemoryStore) Persisted() map[string]Entry {
	out, _ := s.Load()
	return out
}

// Close releases nothing.
func (s *MemoryStore) Close() error {
	return nil
}
