package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process LRU with TTL.
type MemoryStore struct {
	lru      *expirable.LRU[string, memoryEntry]
	ttl      time.Duration
	capacity int
	now      func() time.Time

	// mu keeps Delete's eviction bookkeeping consistent.
	mu        sync.Mutex
	hits      atomic.Uint64
	misses    atomic.Uint64
	dropped   atomic.Uint64
	deletions atomic.Uint64
}

// NewMemoryStore returns an LRU holding at most size entries, each for at
// most ttl.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	s := &MemoryStore{ttl: ttl, capacity: size, now: time.Now}
	s.lru = expirable.NewLRU[string, memoryEntry](size, func(string, memoryEntry) {
		s.dropped.Add(1)
	}, ttl)
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.lru.Get(key)
	if !ok || (!e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)) {
		s.misses.Add(1)
		return nil, false, nil
	}
	s.hits.Add(1)
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 && ttl < s.ttl {
		e.expiresAt = s.now().Add(ttl)
	}
	s.lru.Add(key, e)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru.Remove(key) {
		s.deletions.Add(1)
	}
	return nil
}

// Stats reports evictions for capacity and expiry only.
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.dropped.Load() - s.deletions.Load(),
		Size:      s.lru.Len(),
		Capacity:  s.capacity,
	}
}
