// Package resilience keeps CMS circuit breaker state on disk so concurrent
// lmscache processes agree on whether the CMS is reachable.
package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

// StateFileName is the breaker state file inside the store directory.
const StateFileName = "breaker.json"

// LockTimeout bounds how long an operation waits for the state lock before
// proceeding unlocked. A stuck peer must never hang a command.
const LockTimeout = 100 * time.Millisecond

// Store reads and writes breaker state under an exclusive file lock.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the state file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

func (s *Store) lockPath() string {
	return filepath.Join(s.dir, ".breaker.lock")
}

// acquireLock returns (nil, nil) when the lock times out.
func (s *Store) acquireLock() (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath())
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

// Load reads the current state. A missing or corrupt file reads as closed.
func (s *Store) Load() (*State, error) {
	fl, err := s.acquireLock()
	if err != nil {
		return nil, err
	}
	if fl != nil {
		defer func() { _ = fl.Unlock() }()
	}
	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil || state.Version != StateVersion {
		return NewState(), nil
	}
	return &state, nil
}

func (s *Store) saveUnsafe(state *State) error {
	state.Version = StateVersion
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Unique temp name so unlocked writers never share a file.
	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Update runs fn over the state inside one locked read-modify-write cycle.
func (s *Store) Update(fn func(*State) error) error {
	fl, err := s.acquireLock()
	if err != nil {
		return err
	}
	if fl != nil {
		defer func() { _ = fl.Unlock() }()
	}

	state, err := s.loadUnsafe()
	if err != nil {
		return err
	}
	if err := fn(state); err != nil {
		return err
	}
	return s.saveUnsafe(state)
}

// Clear removes the state file.
func (s *Store) Clear() error {
	fl, err := s.acquireLock()
	if err != nil {
		return err
	}
	if fl != nil {
		defer func() { _ = fl.Unlock() }()
	}

	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
