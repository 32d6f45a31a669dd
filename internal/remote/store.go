// Package remote is the authoritative progress database: one row per
// attempt or completion, queried as "latest record for (user, kind, scope)".
package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/learnhub/lmscache/internal/records"
	"github.com/learnhub/lmscache/internal/remote/migrations"
)

// ErrNotConfigured is returned when the store has no open database.
var ErrNotConfigured = errors.New("progress database is not configured")

// Store persists progress records in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return ErrNotConfigured
	}
	return nil
}

// LatestRecord returns the most recent record for (userID, kind, scope),
// or (nil, nil) when there is none.
func (s *Store) LatestRecord(ctx context.Context, userID string, kind records.Kind, scope string) (*records.Record, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT score, total, score_percentage, passed, completed_at
		   FROM progress_records
		  WHERE user_id = ? AND kind = ? AND scope = ?
		  ORDER BY completed_at DESC, id DESC
		  LIMIT 1`,
		userID, string(kind), scope,
	)

	var (
		rec         records.Record
		total       sql.NullInt64
		passed      int
		completedAt int64
	)
	err := row.Scan(&rec.Score, &total, &rec.ScorePercentage, &passed, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest %s record: %w", kind, err)
	}
	if total.Valid {
		t := int(total.Int64)
		rec.Total = &t
	}
	rec.Passed = passed != 0
	rec.CompletedAt = fromMillis(completedAt)
	return &rec, nil
}

// InsertRecord appends a record. Earlier records for the same scope are kept;
// reads always return the latest.
func (s *Store) InsertRecord(ctx context.Context, userID string, kind records.Kind, scope string, rec *records.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("user id is required")
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown record kind %q", kind)
	}
	if strings.TrimSpace(scope) == "" {
		return fmt.Errorf("scope is required")
	}
	if rec == nil {
		return fmt.Errorf("record is required")
	}

	var total sql.NullInt64
	if rec.Total != nil {
		total = sql.NullInt64{Int64: int64(*rec.Total), Valid: true}
	}
	passed := 0
	if rec.Passed {
		passed = 1
	}
	completedAt := rec.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO progress_records (
		   user_id, kind, scope, score, total, score_percentage, passed, completed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, string(kind), scope, rec.Score, total, rec.ScorePercentage, passed, toMillis(completedAt),
	)
	if err != nil {
		return fmt.Errorf("insert %s record: %w", kind, err)
	}
	return nil
}

// Generation returns the database reset generation. It changes every time
// the database is reseeded.
func (s *Store) Generation(ctx context.Context) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	var generation string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT generation FROM db_meta WHERE id = 1`).Scan(&generation)
	if err != nil {
		return "", fmt.Errorf("read db generation: %w", err)
	}
	return generation, nil
}

// Reseed wipes every progress record and starts a new generation, the way
// an out-of-band database reset does. It returns the new generation.
func (s *Store) Reseed(ctx context.Context) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}

	now := s.now().UTC()
	generation := strconv.FormatInt(now.UnixNano(), 36)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin reseed: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progress_records`); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("wipe progress records: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE db_meta SET generation = ?, reset_at = ? WHERE id = 1`,
		generation, toMillis(now),
	); err != nil {
		_ = tx.Rollback()
		return "", fmt.Errorf("bump db generation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit reseed: %w", err)
	}
	return generation, nil
}
