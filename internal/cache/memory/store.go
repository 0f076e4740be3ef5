package memory

import (
	"context"
	"sync"
	"time"

	"github.com/concierge-agent/backend/internal/cache"
)

// Store is an in-process cache.Store for single-instance deployments and
// tests. A single mutex serializes reads and writes, which keeps hit-count
// increments on one key exact under concurrent gets.
type Store struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	return &Store{
		entries: make(map[string]*cache.Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *Store) Get(_ context.Context, pageContext, query string) (*cache.Entry, bool, error) {
	key := cache.EntryKey(pageContext, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}

	if s.now().Sub(entry.CachedAt) > s.ttl {
		delete(s.entries, key)
		return nil, false, nil
	}

	entry.HitCount++

	snapshot := *entry
	return &snapshot, true, nil
}

func (s *Store) Put(_ context.Context, pageContext, query, responseText string, qualityScore float64) error {
	key := cache.EntryKey(pageContext, query)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &cache.Entry{
		Key:          key,
		PageContext:  pageContext,
		Query:        cache.NormalizeQuery(query),
		ResponseText: responseText,
		QualityScore: qualityScore,
		CachedAt:     s.now(),
		HitCount:     0,
	}

	return nil
}

func (s *Store) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for key, entry := range s.entries {
		if now.Sub(entry.CachedAt) > s.ttl {
			delete(s.entries, key)
			removed++
		}
	}

	return removed, nil
}

// SetClock overrides the time source. Tests use it to age entries past TTL.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
