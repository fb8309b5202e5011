package sessions

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data   Data
	expiry time.Time
}

// MemoryStore keeps sessions in-memory and guards access with a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

// Load returns a copy of the stored data.
func (s *MemoryStore) Load(_ context.Context, key string) (Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || !entry.expiry.After(s.clock()) {
		return nil, ErrNotFound
	}
	return cloneData(entry.data), nil
}

// Save stores a copy of data.
func (s *MemoryStore) Save(_ context.Context, key string, data Data, expiry time.Time) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{data: cloneData(data), expiry: expiry}
	s.mu.Unlock()
	return nil
}

// Delete removes key; unknown keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// ClearExpired drops every expired session.
func (s *MemoryStore) ClearExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var removed int64
	for key, entry := range s.entries {
		if !entry.expiry.After(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}
