// Package progress wires the invalidation bus to the things that react to
// it: the reset purge, per-item completion indicators, course-wide
// aggregates, and the recorder that produces completion and quiz events.
package progress

import (
	"context"

	"github.com/learnhub/lmscache/internal/records"
)

// PassThreshold is the minimum score percentage that passes a quiz.
const PassThreshold = 70.0

// RecordWriter appends records to the authoritative database.
type RecordWriter interface {
	InsertRecord(ctx context.Context, userID string, kind records.Kind, scope string, rec *records.Record) error
}

// GenerationSource reports the authoritative database's reset generation.
type GenerationSource interface {
	Generation(ctx context.Context) (string, error)
}

// CacheResetter is the part of the response cache a bulk reset touches.
type CacheResetter interface {
	Clear()
	ResetStats()
}
