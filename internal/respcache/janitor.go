package respcache

import (
	"context"
	"time"
)

// StartJanitor sweeps expired entries every interval until ctx is done.
// It returns immediately; a non-positive interval does nothing.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Cleanup(); n > 0 {
					s.logger.Debug("evicted expired cache entries", "count", n)
				}
			}
		}
	}()
}
