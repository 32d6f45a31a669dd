// Package records stores per-user attempt and completion records in the
// local key-value store. Records are the fast, offline-capable mirror of
// the authoritative database; they never expire, only get superseded by a
// newer record or purged by a bulk reset.
package records

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies what a record describes.
type Kind string

const (
	KindQuizAttempt    Kind = "quiz_attempt"
	KindQuizLast       Kind = "quiz_last"
	KindChallenge      Kind = "challenge_completed"
	KindViewedItems    Kind = "viewed_items"
	KindCompletedItems Kind = "completed_items"
)

// Kinds lists every known record kind.
var Kinds = []Kind{KindQuizAttempt, KindQuizLast, KindChallenge, KindViewedItems, KindCompletedItems}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// keyPrefix namespaces record keys within the shared local store.
const keyPrefix = "lms"

// ErrMalformedKey is returned by ParseKey for strings that are not record keys.
var ErrMalformedKey = errors.New("malformed record key")

// Key addresses one record: its kind, the owning user (empty for records
// that are not user-scoped) and the scope slug (quiz, course or module).
type Key struct {
	Kind   Kind
	UserID string
	Scope  string
}

// String serializes the key as lms:<kind>:<user>:<scope>.
// Components are query-escaped, so a ':' inside a slug cannot shift fields.
func (k Key) String() string {
	return strings.Join([]string{
		keyPrefix,
		string(k.Kind),
		url.QueryEscape(k.UserID),
		url.QueryEscape(k.Scope),
	}, ":")
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != keyPrefix {
		return Key{}, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	kind := Kind(parts[1])
	if !kind.Valid() {
		return Key{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedKey, parts[1])
	}
	user, err := url.QueryUnescape(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	scope, err := url.QueryUnescape(parts[3])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	return Key{Kind: kind, UserID: user, Scope: scope}, nil
}
