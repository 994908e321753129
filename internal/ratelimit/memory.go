package ratelimit

import (
	"context"
	"sync"
)

type windowKey struct {
	client string
	window int64
}

// MemoryStore keeps counters in process memory. Suitable for a single
// instance; multi-instance deployments should use PostgresStore so all
// replicas share one counter space.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[windowKey]int
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[windowKey]int)}
}

func (s *MemoryStore) Increment(_ context.Context, clientKey string, window int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := windowKey{client: clientKey, window: window}
	s.counts[key]++
	return s.counts[key], nil
}

func (s *MemoryStore) Sweep(_ context.Context, cutoff int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.counts {
		if key.window < cutoff {
			delete(s.counts, key)
		}
	}
	return nil
}

// Len reports the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}
