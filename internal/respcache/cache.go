// Package respcache provides the in-memory TTL response cache used for
// content-list reads, together with call accounting (total calls, hits,
// misses) that is persisted so counters survive restarts.
//
// A Store is constructed once per process and passed to consumers; the
// package holds no global state.
package respcache

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entry holds a cached payload with its write time and time-to-live.
type Entry struct {
	Data      any
	WrittenAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is past its TTL at now.
// An entry read exactly at WrittenAt+TTL is still fresh.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.WrittenAt) > e.TTL
}

// Options configures a Store.
type Options struct {
	// Policy computes per-endpoint TTLs. Zero value uses DefaultPolicy().
	Policy *Policy

	// Stats persists counters between runs. Nil keeps counters in memory only.
	Stats StatsPersister

	// Coalesce enables single-flight deduplication of concurrent misses for
	// the same key in WithCache. Off by default: concurrent misses each call
	// their producer and the last Set wins.
	Coalesce bool

	Logger *slog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Store is the TTL cache. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	stats   Stats
	seq     uint64 // bumped on every stats mutation

	persistMu    sync.Mutex
	persistedSeq uint64
	persister    StatsPersister

	policy   *Policy
	coalesce bool
	flight   singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Store. Persisted counters are loaded immediately; a load
// failure starts the counters at zero.
func New(opts Options) *Store {
	s := &Store{
		entries:   make(map[string]*Entry),
		persister: opts.Stats,
		policy:    opts.Policy,
		coalesce:  opts.Coalesce,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.policy == nil {
		s.policy = DefaultPolicy()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.persister != nil {
		stats, err := s.persister.LoadStats()
		if err != nil {
			s.logger.Warn("loading cache stats", "error", err)
		} else {
			s.stats = stats
		}
	}
	return s
}

// Get returns the fresh value cached for endpoint+params.
// Absent and expired entries count as misses; expired entries are evicted.
// Every call updates and persists the hit/miss counters.
func (s *Store) Get(endpoint string, params Params) (any, bool) {
	return s.lookup(endpoint, params, nil)
}

// lookup is Get with an optional fits check. An entry whose value fails
// fits is evicted and counted as a miss.
func (s *Store) lookup(endpoint string, params Params, fits func(any) bool) (any, bool) {
	key := Key(endpoint, params)

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && entry.Expired(s.now()) {
		delete(s.entries, key)
		ok = false
	}
	if ok && fits != nil && !fits(entry.Data) {
		delete(s.entries, key)
		ok = false
		s.logger.Warn("evicting cached value of unexpected type", "key", key)
	}
	if ok {
		s.stats.CacheHits++
	} else {
		s.stats.CacheMisses++
	}
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap, seq)

	if !ok {
		s.logger.Debug("cache miss", "key", key)
		return nil, false
	}
	s.logger.Debug("cache hit", "key", key)
	return entry.Data, true
}

// Set stores data for endpoint+params, replacing any existing entry.
// A ttl <= 0 uses the policy TTL for endpoint.
func (s *Store) Set(endpoint string, data any, params Params, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.policy.TTLFor(endpoint)
	}
	key := Key(endpoint, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &Entry{
		Data:      data,
		WrittenAt: s.now(),
		TTL:       ttl,
	}
}

// Delete evicts the entry for endpoint+params.
func (s *Store) Delete(endpoint string, params Params) {
	key := Key(endpoint, params)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Clear removes all entries. Counters are left untouched.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

// Cleanup evicts every expired entry and returns how many were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Policy returns the TTL policy in use.
func (s *Store) Policy() *Policy {
	return s.policy
}
