// Package reconcile decides, per read, whether the locally held record or
// the authoritative database record should be shown, using completion
// timestamps as the tie-breaker.
//
// The policy is asymmetric on purpose: a failed remote query falls back to
// local data so transient outages never hide a user's progress, while a
// local record that claims to be newer than the database is treated as an
// ordering anomaly and the database still wins.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/learnhub/lmscache/internal/records"
)

// UserResolver returns the signed-in user. An empty id or an error means
// nobody is signed in.
type UserResolver interface {
	CurrentUser(ctx context.Context) (string, error)
}

// RemoteStore queries the authoritative database.
// LatestRecord returns (nil, nil) when no row exists; a non-nil error means
// the query itself failed.
type RemoteStore interface {
	LatestRecord(ctx context.Context, userID string, kind records.Kind, scope string) (*records.Record, error)
}

// Source names which side a Result selected.
type Source string

const (
	SourceNone     Source = "none"
	SourceLocal    Source = "local"
	SourceDatabase Source = "database"
)

// Result is the outcome of one validation. At most one of ShouldUseLocal
// and ShouldUseDatabase is set; neither is set when no data exists
// anywhere. Either record may be nil.
type Result struct {
	IsValid           bool            `json:"is_valid"`
	LocalData         *records.Record `json:"local_data"`
	DatabaseData      *records.Record `json:"database_data"`
	ShouldUseLocal    bool            `json:"should_use_local"`
	ShouldUseDatabase bool            `json:"should_use_database"`
}

// Data returns the record the caller should render, or nil.
func (r Result) Data() *records.Record {
	switch {
	case r.ShouldUseDatabase:
		return r.DatabaseData
	case r.ShouldUseLocal:
		return r.LocalData
	default:
		return nil
	}
}

// Source reports which side was selected.
func (r Result) Source() Source {
	switch {
	case r.ShouldUseDatabase:
		return SourceDatabase
	case r.ShouldUseLocal:
		return SourceLocal
	default:
		return SourceNone
	}
}

// Validator reconciles local records against the database.
type Validator struct {
	users  UserResolver
	remote RemoteStore
	local  *records.Store
	logger *slog.Logger
}

// NewValidator creates a Validator. local may be nil when only Validate is used.
func NewValidator(users UserResolver, remote RemoteStore, local *records.Store, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Validator{users: users, remote: remote, local: local, logger: logger}
}

// Validate decides between local and the database record for (kind, scope)
// of the current user. It never returns an error; every failure resolves to
// the best available data.
func (v *Validator) Validate(ctx context.Context, kind records.Kind, scope string, local *records.Record) Result {
	userID := v.currentUser(ctx)
	if userID == "" {
		// A local record cannot be trusted without an identity to check it against.
		return Result{}
	}
	return v.validateFor(ctx, userID, kind, scope, local)
}

func (v *Validator) validateFor(ctx context.Context, userID string, kind records.Kind, scope string, local *records.Record) Result {
	remote, err := v.remote.LatestRecord(ctx, userID, kind, scope)
	if err != nil {
		v.logger.Warn("remote record query failed, using local data",
			"kind", kind, "scope", scope, "has_local", local != nil, "error", err)
		return Result{
			IsValid:        local != nil,
			LocalData:      local,
			ShouldUseLocal: local != nil,
		}
	}

	if remote == nil {
		// Not synced yet; local is provisionally valid.
		return Result{
			IsValid:        local != nil,
			LocalData:      local,
			ShouldUseLocal: local != nil,
		}
	}

	res := Result{
		IsValid:           true,
		LocalData:         local,
		DatabaseData:      remote,
		ShouldUseDatabase: true,
	}
	if local != nil && local.CompletedAt.After(remote.CompletedAt) {
		res.IsValid = false
		v.logger.Warn("local record is ahead of database, preferring database",
			"kind", kind, "scope", scope,
			"local_completed_at", local.CompletedAt, "database_completed_at", remote.CompletedAt)
	}
	return res
}

// Resolve runs the full read path for (kind, scope): load the current
// user's local record, validate it, and when the database wins with
// different data, overwrite the local copy so the next read is warm.
// Write-back failures are logged and do not change the result.
func (v *Validator) Resolve(ctx context.Context, kind records.Kind, scope string) Result {
	userID := v.currentUser(ctx)
	if userID == "" {
		return Result{}
	}

	key := records.Key{Kind: kind, UserID: userID, Scope: scope}
	local, _ := v.local.Load(key)

	res := v.validateFor(ctx, userID, kind, scope, local)
	if res.ShouldUseDatabase && !res.DatabaseData.Equal(local) {
		if err := v.local.Save(key, res.DatabaseData); err != nil {
			v.logger.Warn("refreshing local record from database", "key", key.String(), "error", err)
		}
	}
	return res
}

func (v *Validator) currentUser(ctx context.Context) string {
	if v.users == nil {
		return ""
	}
	userID, err := v.users.CurrentUser(ctx)
	if err != nil {
		v.logger.Debug("no current user", "error", err)
		return ""
	}
	return userID
}
