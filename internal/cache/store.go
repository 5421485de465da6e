// Package cache holds previously retrieved series keyed by the exact
// (symbol, start, end, interval) tuple.
package cache

import (
	"fmt"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"TickerLens/internal/metrics"
	"TickerLens/internal/model"
)

// Stats is a point-in-time summary of the store.
type Stats struct {
	Entries   int
	Writes    uint64
	Evictions uint64
	Bounded   bool
}

// Store maps a Key to the series last retrieved for it. Entries are immutable:
// Put stores a private copy and a later Put for the same key replaces it.
//
// With maxEntries <= 0 the store is unbounded and never evicts. Otherwise it
// keeps the maxEntries most recently used entries.
//
// All operations are serialized; concurrent Puts to the same key resolve as
// last-writer-wins.
type Store struct {
	mu        sync.RWMutex
	entries   map[model.Key]model.Series
	lru       *lru.Cache[model.Key, model.Series]
	writes    uint64
	evictions uint64
	metrics   *metrics.Metrics
}

// New creates a store. m may be nil.
func New(maxEntries int, m *metrics.Metrics) (*Store, error) {
	s := &Store{metrics: m}
	if maxEntries <= 0 {
		s.entries = make(map[model.Key]model.Series)
		return s, nil
	}
	l, err := lru.NewWithEvict(maxEntries, func(model.Key, model.Series) {
		// Called with s.mu held by Put.
		s.evictions++
	})
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	s.lru = l
	return s, nil
}

// Get returns the series stored under k. In bounded mode it marks k as
// recently used.
func (s *Store) Get(k model.Key) (model.Series, bool) {
	if s.lru != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lru.Get(k)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[k]
	return v, ok
}

// Contains reports whether k is present without touching recency.
func (s *Store) Contains(k model.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lru != nil {
		return s.lru.Contains(k)
	}
	_, ok := s.entries[k]
	return ok
}

// Put replaces the entry for k with a copy of series.
func (s *Store) Put(k model.Key, series model.Series) {
	v := slices.Clone(series)
	if v == nil {
		v = model.Series{}
	}
	s.mu.Lock()
	if s.lru != nil {
		s.lru.Add(k, v)
	} else {
		s.entries[k] = v
	}
	s.writes++
	n := s.lenLocked()
	s.mu.Unlock()
	s.metrics.Wrote(n)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lenLocked()
}

func (s *Store) lenLocked() int {
	if s.lru != nil {
		return s.lru.Len()
	}
	return len(s.entries)
}

// Keys returns the stored keys in no particular order.
func (s *Store) Keys() []model.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lru != nil {
		return s.lru.Keys()
	}
	keys := make([]model.Key, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Entries:   s.lenLocked(),
		Writes:    s.writes,
		Evictions: s.evictions,
		Bounded:   s.lru != nil,
	}
}
