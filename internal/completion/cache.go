// Package completion provides tab completion support for the lmscache CLI.
// It keeps a small file-based cache of course and quiz slugs, written as a
// side effect of content-list commands, so shell completions never need the
// CMS or the database.
package completion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/learnhub/lmscache/internal/localstore"
)

// CachedItem holds one completable slug.
type CachedItem struct {
	Slug  string `json:"slug"`
	Title string `json:"title,omitempty"`
}

// Cache stores completion data with metadata for staleness detection.
type Cache struct {
	Courses          []CachedItem            `json:"courses,omitempty"`
	Quizzes          map[string][]CachedItem `json:"quizzes,omitempty"` // keyed by course
	CoursesUpdatedAt time.Time               `json:"courses_updated_at,omitempty"`
	QuizzesUpdatedAt time.Time               `json:"quizzes_updated_at,omitempty"`
	Version          int                     `json:"version"` // Schema version for future migrations
}

const (
	// CacheVersion is the current cache schema version.
	CacheVersion = 1

	// DefaultMaxAge is the default cache staleness threshold (1 hour).
	DefaultMaxAge = time.Hour

	// CacheFileName is the default cache file name.
	CacheFileName = "completion.json"
)

// Store handles reading and writing the completion cache.
type Store struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

// NewStore creates a new cache store.
// If dir is empty, it uses the default state directory.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = localstore.DefaultDir()
	}
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path to the cache file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, CacheFileName)
}

// Load reads the cache from disk.
// Returns an empty cache if the file doesn't exist or is invalid.
func (s *Store) Load() (*Cache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadUnsafe()
}

// loadUnsafe reads the cache without locking (caller must hold lock).
func (s *Store) loadUnsafe() (*Cache, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return &Cache{Version: CacheVersion}, nil
		}
		return nil, err
	}

	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		// Corrupt cache reads as empty
		return &Cache{Version: CacheVersion}, nil //nolint:nilerr // graceful degradation for corrupted cache
	}
	return &cache, nil
}

// saveUnsafe writes the cache atomically (caller must hold lock).
func (s *Store) saveUnsafe(cache *Cache) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	cache.Version = CacheVersion

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.Path() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.Path())
}

func (s *Store) update(fn func(*Cache)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.loadUnsafe()
	if err != nil {
		cache = &Cache{Version: CacheVersion}
	}
	fn(cache)
	return s.saveUnsafe(cache)
}

// UpdateCourses replaces the cached course list.
func (s *Store) UpdateCourses(courses []CachedItem) error {
	return s.update(func(c *Cache) {
		c.Courses = courses
		c.CoursesUpdatedAt = s.now()
	})
}

// UpdateQuizzes replaces the cached quizzes of one course.
func (s *Store) UpdateQuizzes(course string, quizzes []CachedItem) error {
	return s.update(func(c *Cache) {
		if c.Quizzes == nil {
			c.Quizzes = make(map[string][]CachedItem)
		}
		c.Quizzes[course] = quizzes
		c.QuizzesUpdatedAt = s.now()
	})
}

// IsStale returns true if the course list is missing or older than maxAge.
func (s *Store) IsStale(maxAge time.Duration) bool {
	cache, err := s.Load()
	if err != nil || cache.CoursesUpdatedAt.IsZero() {
		return true
	}
	return s.now().Sub(cache.CoursesUpdatedAt) > maxAge
}

// Clear removes the cache file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Courses returns cached courses, or nil if cache is empty/missing.
func (s *Store) Courses() []CachedItem {
	cache, err := s.Load()
	if err != nil {
		return nil
	}
	return cache.Courses
}

// Quizzes returns cached quizzes for course, or for every course when
// course is empty. Slugs are deduplicated and sorted.
func (s *Store) Quizzes(course string) []CachedItem {
	cache, err := s.Load()
	if err != nil {
		return nil
	}
	if course != "" {
		return cache.Quizzes[course]
	}

	seen := make(map[string]bool)
	var all []CachedItem
	for _, items := range cache.Quizzes {
		for _, item := range items {
			if !seen[item.Slug] {
				seen[item.Slug] = true
				all = append(all, item)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })
	return all
}
