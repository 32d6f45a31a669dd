// Package auth tracks which learner is signed in against a CMS origin.
// Records are partitioned by that user id; with nobody signed in, local
// progress is never trusted.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// UserEnv overrides the stored session with a fixed user id.
const UserEnv = "LMSCACHE_USER"

// ErrNotSignedIn is returned by CurrentUser when no identity is available.
var ErrNotSignedIn = errors.New("not signed in")

// Manager resolves the current user for one CMS origin.
type Manager struct {
	origin string
	store  *Store
	now    func() time.Time
}

// NewManager creates a Manager for cmsURL backed by store.
func NewManager(cmsURL string, store *Store) *Manager {
	return &Manager{origin: NormalizeOrigin(cmsURL), store: store, now: time.Now}
}

// NormalizeOrigin reduces a URL to scheme://host so sessions survive path changes.
func NormalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}

// Origin returns the normalized origin sessions are stored under.
func (m *Manager) Origin() string {
	return m.origin
}

// CurrentUser returns the signed-in user id. It returns ErrNotSignedIn when
// there is none.
func (m *Manager) CurrentUser(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id := strings.TrimSpace(os.Getenv(UserEnv)); id != "" {
		return id, nil
	}
	sess, err := m.store.Load(m.origin)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return "", ErrNotSignedIn
		}
		return "", err
	}
	if sess.UserID == "" {
		return "", ErrNotSignedIn
	}
	return sess.UserID, nil
}

// Session returns the stored session, if any.
func (m *Manager) Session() (*Session, error) {
	return m.store.Load(m.origin)
}

// Login stores a session for userID.
func (m *Manager) Login(userID, email string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	sess := &Session{UserID: userID, Email: strings.TrimSpace(email), SignedInAt: m.now().Unix()}
	if err := m.store.Save(m.origin, sess); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	return sess, nil
}

// Logout forgets the stored session.
func (m *Manager) Logout() error {
	return m.store.Delete(m.origin)
}

// Store returns the underlying session store.
func (m *Manager) Store() *Store {
	return m.store
}
