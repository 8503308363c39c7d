package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONStore persists cache entries as a single JSON file with restricted
// permissions. Writes go through a temp file and rename so a crash cannot
// leave a truncated record.
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSON-backed store at path.
func NewJSONStore(path string) (*JSONStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	return &JSONStore{path: path}, nil
}

// Load reads all entries. A missing file is an empty store, not an error.
func (s *JSONStore) Load() (map[string]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]Entry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt record only costs the user a re-prompt; start fresh.
		return make(map[string]Entry), nil
	}

	if entries == nil {
		entries = make(map[string]Entry)
	}
	return entries, nil
}

// Save atomically replaces the persisted entry set.
func (s *JSONStore) Save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entries: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}

	return nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}
