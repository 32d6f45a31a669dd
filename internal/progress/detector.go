package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/localstore"
)

// GenerationKey holds the last database generation this machine has seen.
const GenerationKey = "lmscache:db_generation"

// ResetDetector notices out-of-band database resets by comparing the
// database generation with the one last seen locally.
type ResetDetector struct {
	remote GenerationSource
	kv     localstore.KV
	pub    events.Publisher
	logger *slog.Logger

	mu    sync.Mutex
	fired bool
}

// NewResetDetector creates a detector that publishes BulkReset on pub.
func NewResetDetector(remote GenerationSource, kv localstore.KV, pub events.Publisher, logger *slog.Logger) *ResetDetector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResetDetector{remote: remote, kv: kv, pub: pub, logger: logger}
}

// Check compares generations and reports whether it published a reset.
// The first generation ever seen is recorded without publishing. A change
// is always recorded but published at most once per detector.
func (d *ResetDetector) Check(ctx context.Context) (bool, error) {
	gen, err := d.remote.Generation(ctx)
	if err != nil {
		return false, fmt.Errorf("reading database generation: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	seen, ok := d.kv.Get(GenerationKey)
	if ok && seen == gen {
		return false, nil
	}
	if err := d.kv.Set(GenerationKey, gen); err != nil {
		d.logger.Warn("storing database generation", "error", err)
	}
	if !ok {
		return false, nil
	}
	if d.fired {
		d.logger.Debug("database reset already announced this session", "generation", gen)
		return false, nil
	}
	d.fired = true
	d.logger.Info("database reset detected", "previous", seen, "generation", gen)
	d.pub.Publish(events.Event{Kind: events.BulkReset})
	return true, nil
}

// Watch re-runs Check whenever the sentinel file at path is written or
// replaced, until ctx is done. It checks once before watching.
func (d *ResetDetector) Watch(ctx context.Context, path string) error {
	if path == "" {
		return errors.New("reset sentinel path is required")
	}
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so atomic replaces of the sentinel are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	if _, err := d.Check(ctx); err != nil {
		d.logger.Warn("reset check failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, err := d.Check(ctx); err != nil {
				d.logger.Warn("reset check failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("reset watcher error", "error", err)
		}
	}
}
