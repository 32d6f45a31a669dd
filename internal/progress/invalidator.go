package progress

import (
	"context"
	"log/slog"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/reconcile"
	"github.com/learnhub/lmscache/internal/records"
)

// Invalidator purges derived state when the database is reset: the current
// user's durable records, every cached response and the cache counters.
type Invalidator struct {
	users  reconcile.UserResolver
	local  *records.Store
	cache  CacheResetter
	logger *slog.Logger
	unsub  func()
}

// NewInvalidator subscribes an Invalidator to BulkReset on sub.
func NewInvalidator(sub events.Subscriber, users reconcile.UserResolver, local *records.Store, cache CacheResetter, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	inv := &Invalidator{users: users, local: local, cache: cache, logger: logger}
	inv.unsub = sub.Subscribe(events.BulkReset, func(events.Event) {
		inv.Purge(context.Background())
	})
	return inv
}

// Purge runs the reset cleanup directly. Without a signed-in user only
// unowned records are removed.
func (inv *Invalidator) Purge(ctx context.Context) {
	userID := ""
	if inv.users != nil {
		if id, err := inv.users.CurrentUser(ctx); err == nil {
			userID = id
		}
	}

	if inv.local != nil {
		removed, err := inv.local.PurgeUser(userID)
		if err != nil {
			inv.logger.Warn("purging local records after reset", "removed", removed, "error", err)
		} else {
			inv.logger.Info("purged local records after reset", "removed", removed)
		}
	}
	if inv.cache != nil {
		inv.cache.Clear()
		inv.cache.ResetStats()
	}
}

// Close unsubscribes from the bus.
func (inv *Invalidator) Close() {
	inv.unsub()
}
