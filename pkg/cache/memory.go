package cache

import (
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore holds encoded entries in process memory. Values are stored as
// JSON so callers never share slices with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Load(hash string) (Entry, error) {
	s.mu.Lock()
	b, ok := s.entries[hash]
	s.mu.Unlock()
	if !ok {
		return Entry{}, ErrNotFound
	}

	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, ErrCorrupt
	}
	return e, nil
}

func (s *MemoryStore) Save(hash string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[hash] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Prune(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, b := range s.entries {
		var e Entry
		if err := json.Unmarshal(b, &e); err == nil && !e.Timestamp.Before(cutoff) {
			continue
		}
		delete(s.entries, k)
		removed++
	}
	return removed, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	return nil
}
