package execution

import (
	"context"
	"sync"
	"time"
)

// IdempotencyStore tracks submitted opportunity keys for a bounded TTL.
// Acquire returns false when the key was already taken within the window.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// InMemIdempotencyStore is the single-process default; the Redis-backed
// variant in internal/repository shares keys across shards.
type InMemIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &InMemIdempotencyStore{
		ttl:     ttl,
		entries: make(map[string]time.Time),
	}
}

func (s *InMemIdempotencyStore) Acquire(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if at, ok := s.entries[key]; ok && now.Sub(at) < s.ttl {
		return false, nil
	}
	s.entries[key] = now
	s.pruneLocked(now)
	return true, nil
}

// pruneLocked drops expired keys so long-running processes stay bounded.
func (s *InMemIdempotencyStore) pruneLocked(now time.Time) {
	if len(s.entries) < 1024 {
		return
	}
	for k, at := range s.entries {
		if now.Sub(at) >= s.ttl {
			delete(s.entries, k)
		}
	}
}
