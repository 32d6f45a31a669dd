// Package localstore provides the durable string key-value store that backs
// local progress records and persisted cache counters. Values are opaque
// strings (callers store JSON); reads never fail, a missing or corrupt
// backing file reads as empty.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

const (
	// FileName is the default backing file name within the state directory.
	FileName = "local_storage.json"

	// LockTimeout is the maximum time to wait for the file lock.
	// If exceeded, operations proceed without locking (fail-open).
	LockTimeout = 100 * time.Millisecond
)

// KV is a synchronous string key-value store with no transactions.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
	Keys() []string
}

// File is a KV persisted as a single JSON object on disk.
// Every operation re-reads the file so concurrent processes sharing the
// directory observe each other's writes.
type File struct {
	dir string
}

// NewFile creates a file-backed store rooted at dir.
// If dir is empty, it uses the default location (~/.cache/lmscache/).
func NewFile(dir string) *File {
	if dir == "" {
		dir = DefaultDir()
	}
	return &File{dir: dir}
}

// DefaultDir returns the default state directory path.
func DefaultDir() string {
	if cacheDir := os.Getenv("XDG_CACHE_HOME"); cacheDir != "" {
		return filepath.Join(cacheDir, "lmscache")
	}
	if cacheDir, err := os.UserCacheDir(); err == nil && cacheDir != "" {
		return filepath.Join(cacheDir, "lmscache")
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".cache", "lmscache")
	}
	return filepath.Join(os.TempDir(), "lmscache")
}

// Dir returns the state directory path.
func (f *File) Dir() string {
	return f.dir
}

// Path returns the full path to the backing file.
func (f *File) Path() string {
	return filepath.Join(f.dir, FileName)
}

func (f *File) lockPath() string {
	return filepath.Join(f.dir, ".lock")
}

// acquireLock obtains an exclusive lock on the state directory.
// Returns (nil, nil) when the lock could not be taken within LockTimeout;
// callers proceed unlocked rather than hang.
func (f *File) acquireLock() (*flock.Flock, error) {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return nil, err
	}

	fl := flock.New(f.lockPath())

	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return fl, nil
}

func release(fl *flock.Flock) {
	if fl != nil {
		_ = fl.Unlock()
	}
}

// Get returns the value stored under key.
func (f *File) Get(key string) (string, bool) {
	fl, err := f.acquireLock()
	if err != nil {
		return "", false
	}
	defer release(fl)

	v, ok := f.loadUnsafe()[key]
	return v, ok
}

// Set stores value under key.
func (f *File) Set(key, value string) error {
	return f.update(func(m map[string]string) bool {
		if cur, ok := m[key]; ok && cur == value {
			return false
		}
		m[key] = value
		return true
	})
}

// Remove deletes key. Removing a missing key is not an error.
func (f *File) Remove(key string) error {
	return f.update(func(m map[string]string) bool {
		if _, ok := m[key]; !ok {
			return false
		}
		delete(m, key)
		return true
	})
}

// Keys returns all stored keys in sorted order.
func (f *File) Keys() []string {
	fl, err := f.acquireLock()
	if err != nil {
		return nil
	}
	defer release(fl)

	m := f.loadUnsafe()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clear removes the backing file.
func (f *File) Clear() error {
	fl, err := f.acquireLock()
	if err != nil {
		return err
	}
	defer release(fl)

	err = os.Remove(f.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// update runs a read-modify-write cycle under the lock. fn reports whether
// it changed the map; unchanged maps are not rewritten.
func (f *File) update(fn func(map[string]string) bool) error {
	fl, err := f.acquireLock()
	if err != nil {
		return err
	}
	defer release(fl)

	m := f.loadUnsafe()
	if !fn(m) {
		return nil
	}
	return f.saveUnsafe(m)
}

// loadUnsafe reads the backing file without locking (caller must hold lock).
func (f *File) loadUnsafe() map[string]string {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		return make(map[string]string)
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		// Corrupt file reads as empty; the next write replaces it.
		return make(map[string]string)
	}
	return m
}

// saveUnsafe writes the map atomically without locking (caller must hold lock).
func (f *File) saveUnsafe(m map[string]string) error {
	if err := os.MkdirAll(f.dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	// Unique temp name so fail-open writers never share a temp file.
	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", f.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		_ = os.Remove(f.Path())
	}

	if err := os.Rename(tmpPath, f.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
