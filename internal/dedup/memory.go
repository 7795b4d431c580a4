package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the single-instance default. Entries are pruned lazily on
// Seen and in bulk by the sweep job.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

func (s *MemoryStore) Seen(ctx context.Context, messageID string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.entries[messageID]; ok && now.Before(expiry) {
		return true, nil
	}
	s.entries[messageID] = now.Add(s.ttl)
	return false, nil
}

// DeleteExpired drops entries past their window and reports how many.
func (s *MemoryStore) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
