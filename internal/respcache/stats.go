package respcache

import (
	"encoding/json"
	"fmt"

	"github.com/learnhub/lmscache/internal/localstore"
)

// StatsKey is the local storage key holding persisted counters.
const StatsKey = "lmscache:api_call_stats"

// Stats are the process-wide call counters. They are advisory telemetry:
// monotonically increasing until ResetStats, not scoped per user.
type Stats struct {
	TotalCalls  uint64 `json:"total_calls"`
	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`
}

// HitRate returns hits / (hits + misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	lookups := s.CacheHits + s.CacheMisses
	if lookups == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(lookups)
}

// StatsPersister loads and saves counters.
type StatsPersister interface {
	LoadStats() (Stats, error)
	SaveStats(Stats) error
}

// TrackAPICall records one invocation of an upstream producer.
func (s *Store) TrackAPICall() {
	s.mu.Lock()
	s.stats.TotalCalls++
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap, seq)
}

// GetStats returns a copy of the current counters.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ResetStats zeroes all counters and persists the reset.
func (s *Store) ResetStats() {
	s.mu.Lock()
	s.stats = Stats{}
	snap, seq := s.snapshotLocked()
	s.mu.Unlock()

	s.persist(snap, seq)
}

func (s *Store) snapshotLocked() (Stats, uint64) {
	s.seq++
	return s.stats, s.seq
}

// persist writes snap unless a newer snapshot was already written.
// Failures are logged and dropped; counters keep working in memory.
func (s *Store) persist(snap Stats, seq uint64) {
	if s.persister == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if seq <= s.persistedSeq {
		return
	}
	s.persistedSeq = seq
	if err := s.persister.SaveStats(snap); err != nil {
		s.logger.Warn("persisting cache stats", "error", err)
	}
}

// KVStats persists Stats as JSON under StatsKey in a local KV store.
type KVStats struct {
	KV localstore.KV
}

// LoadStats reads counters. Missing or corrupt values load as zero.
func (p KVStats) LoadStats() (Stats, error) {
	raw, ok := p.KV.Get(StatsKey)
	if !ok {
		return Stats{}, nil
	}
	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		return Stats{}, fmt.Errorf("decoding %s: %w", StatsKey, err)
	}
	return stats, nil
}

// SaveStats writes counters.
func (p KVStats) SaveStats(stats Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return p.KV.Set(StatsKey, string(data))
}
