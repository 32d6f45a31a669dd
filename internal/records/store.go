package records

import (
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/learnhub/lmscache/internal/localstore"
)

// Record is a quiz attempt or challenge completion.
// For challenges Score is 1 and Total is nil.
type Record struct {
	Score           int       `json:"score"`
	Total           *int      `json:"total,omitempty"`
	ScorePercentage float64   `json:"score_percentage"`
	Passed          bool      `json:"passed"`
	CompletedAt     time.Time `json:"completed_at"`
}

// NewerThan reports whether r completed strictly after other.
// Any record is newer than nil.
func (r *Record) NewerThan(other *Record) bool {
	if other == nil {
		return true
	}
	return r.CompletedAt.After(other.CompletedAt)
}

// Equal reports whether r and other hold the same values.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if (r.Total == nil) != (other.Total == nil) {
		return false
	}
	if r.Total != nil && *r.Total != *other.Total {
		return false
	}
	return r.Score == other.Score &&
		r.ScorePercentage == other.ScorePercentage &&
		r.Passed == other.Passed &&
		r.CompletedAt.Equal(other.CompletedAt)
}

// Perfect reports whether the record is a 100% score.
func (r *Record) Perfect() bool {
	return r != nil && r.ScorePercentage >= 100
}

// Store reads and writes records in a local KV.
type Store struct {
	kv     localstore.KV
	logger *slog.Logger
}

// NewStore creates a record store over kv.
func NewStore(kv localstore.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{kv: kv, logger: logger}
}

// Load returns the record stored under key.
// Missing and unparseable values are reported as absent.
func (s *Store) Load(key Key) (*Record, bool) {
	raw, ok := s.kv.Get(key.String())
	if !ok {
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		s.logger.Debug("ignoring corrupt local record", "key", key.String(), "error", err)
		return nil, false
	}
	return &rec, true
}

// Save writes rec under key, replacing whatever was there.
func (s *Store) Save(key Key, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.kv.Set(key.String(), string(data))
}

// Supersede writes rec only if no record exists under key or rec is
// strictly newer. It reports whether the write happened.
func (s *Store) Supersede(key Key, rec *Record) (bool, error) {
	if cur, ok := s.Load(key); ok && !rec.NewerThan(cur) {
		return false, nil
	}
	if err := s.Save(key, rec); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes the record under key.
func (s *Store) Remove(key Key) error {
	return s.kv.Remove(key.String())
}

// Items returns the slug list stored under key (viewed or completed items).
func (s *Store) Items(key Key) []string {
	raw, ok := s.kv.Get(key.String())
	if !ok {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Debug("ignoring corrupt local item list", "key", key.String(), "error", err)
		return nil
	}
	return items
}

// AddItem appends slug to the list under key if not already present.
// It reports whether the list changed.
func (s *Store) AddItem(key Key, slug string) (bool, error) {
	items := s.Items(key)
	if slices.Contains(items, slug) {
		return false, nil
	}
	items = append(items, slug)
	data, err := json.Marshal(items)
	if err != nil {
		return false, err
	}
	if err := s.kv.Set(key.String(), string(data)); err != nil {
		return false, err
	}
	return true, nil
}

// PurgeUser removes every record key of a known kind owned by userID or
// not owned by any user. Keys outside the record namespace are left alone.
// It returns how many keys were removed; removal continues past failures
// and the first error is returned.
func (s *Store) PurgeUser(userID string) (int, error) {
	removed := 0
	var firstErr error
	for _, raw := range s.kv.Keys() {
		key, err := ParseKey(raw)
		if err != nil {
			continue
		}
		if key.UserID != userID && key.UserID != "" {
			continue
		}
		if err := s.kv.Remove(raw); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
