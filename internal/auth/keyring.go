package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "lmscache"

	// NoKeyringEnv forces the plaintext file backend when set.
	NoKeyringEnv = "LMSCACHE_NO_KEYRING"
)

// ErrNoSession is returned when no session is stored for an origin.
var ErrNoSession = errors.New("no stored session")

// Session identifies the signed-in learner for one CMS origin.
type Session struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	SignedInAt int64  `json:"signed_in_at"`
}

// Store handles session storage, preferring the system keychain.
type Store struct {
	useKeyring  bool
	fallbackDir string
}

// NewStore creates a session store.
func NewStore(fallbackDir string) *Store {
	if os.Getenv(NoKeyringEnv) != "" {
		return &Store{useKeyring: false, fallbackDir: fallbackDir}
	}

	// Probe the keyring; headless Linux often has none.
	testKey := "lmscache::probe"
	if err := keyring.Set(serviceName, testKey, "probe"); err == nil {
		_ = keyring.Delete(serviceName, testKey)
		return &Store{useKeyring: true, fallbackDir: fallbackDir}
	}
	fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, session stored in plaintext at %s\n",
		filepath.Join(fallbackDir, "sessions.json"))
	return &Store{useKeyring: false, fallbackDir: fallbackDir}
}

func key(origin string) string {
	return "lmscache::" + origin
}

// Load retrieves the session for origin.
func (s *Store) Load(origin string) (*Session, error) {
	if s.useKeyring {
		return s.loadFromKeyring(origin)
	}
	return s.loadFromFile(origin)
}

// Save stores the session for origin.
func (s *Store) Save(origin string, sess *Session) error {
	if s.useKeyring {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		return keyring.Set(serviceName, key(origin), string(data))
	}
	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}
	all[origin] = sess
	return s.saveAllToFile(all)
}

// Delete removes the session for origin. Deleting a missing session is not an error.
func (s *Store) Delete(origin string) error {
	if s.useKeyring {
		err := keyring.Delete(serviceName, key(origin))
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}
	if _, ok := all[origin]; !ok {
		return nil
	}
	delete(all, origin)
	return s.saveAllToFile(all)
}

// UsingKeyring reports whether the store is backed by the system keyring.
func (s *Store) UsingKeyring() bool {
	return s.useKeyring
}

func (s *Store) loadFromKeyring(origin string) (*Session, error) {
	data, err := keyring.Get(serviceName, key(origin))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	return &sess, nil
}

func (s *Store) sessionsPath() string {
	return filepath.Join(s.fallbackDir, "sessions.json")
}

func (s *Store) loadAllFromFile() (map[string]*Session, error) {
	data, err := os.ReadFile(s.sessionsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*Session), nil
		}
		return nil, err
	}
	var all map[string]*Session
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid sessions file: %w", err)
	}
	if all == nil {
		all = make(map[string]*Session)
	}
	return all, nil
}

func (s *Store) saveAllToFile(all map[string]*Session) error {
	if err := os.MkdirAll(s.fallbackDir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.fallbackDir, "sessions-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	destPath := s.sessionsPath()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) loadFromFile(origin string) (*Session, error) {
	all, err := s.loadAllFromFile()
	if err != nil {
		return nil, err
	}
	sess, ok := all[origin]
	if !ok || sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}
