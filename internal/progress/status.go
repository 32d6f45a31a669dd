package progress

import (
	"context"
	"sync"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/reconcile"
	"github.com/learnhub/lmscache/internal/records"
)

// QuizStatus answers per-quiz questions from reconciled records.
type QuizStatus struct {
	validator *reconcile.Validator
}

// NewQuizStatus creates a QuizStatus.
func NewQuizStatus(v *reconcile.Validator) *QuizStatus {
	return &QuizStatus{validator: v}
}

// Perfect reports whether the quiz's latest reconciled attempt scored 100%.
func (q *QuizStatus) Perfect(ctx context.Context, quizSlug string) (bool, reconcile.Result) {
	res := q.validator.Resolve(ctx, records.KindQuizAttempt, quizSlug)
	return res.Data().Perfect(), res
}

// CompletionIndicator tracks whether one item is complete. It re-derives
// its state only for ItemCompleted events carrying its own slug.
type CompletionIndicator struct {
	slug      string
	validator *reconcile.Validator
	unsub     func()

	mu        sync.RWMutex
	completed bool
	source    reconcile.Source
}

// NewCompletionIndicator subscribes an indicator for slug. Call Refresh for
// the initial state.
func NewCompletionIndicator(sub events.Subscriber, v *reconcile.Validator, slug string) *CompletionIndicator {
	ci := &CompletionIndicator{slug: slug, validator: v, source: reconcile.SourceNone}
	ci.unsub = sub.Subscribe(events.ItemCompleted, func(e events.Event) {
		if e.Slug != ci.slug {
			return
		}
		ci.Refresh(context.Background())
	})
	return ci
}

// Refresh re-runs reconciliation for the item.
func (ci *CompletionIndicator) Refresh(ctx context.Context) bool {
	res := ci.validator.Resolve(ctx, records.KindChallenge, ci.slug)
	rec := res.Data()
	done := rec != nil && rec.Passed

	ci.mu.Lock()
	ci.completed = done
	ci.source = res.Source()
	ci.mu.Unlock()
	return done
}

// Completed returns the last derived state.
func (ci *CompletionIndicator) Completed() bool {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return ci.completed
}

// Source returns where the last derived state came from.
func (ci *CompletionIndicator) Source() reconcile.Source {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return ci.source
}

// Slug returns the tracked item.
func (ci *CompletionIndicator) Slug() string {
	return ci.slug
}

// Close unsubscribes from the bus.
func (ci *CompletionIndicator) Close() {
	ci.unsub()
}
