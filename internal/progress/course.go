package progress

import (
	"context"
	"sync"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/reconcile"
	"github.com/learnhub/lmscache/internal/records"
)

// Summary aggregates quiz results for one course.
type Summary struct {
	Total     int     `json:"total"`
	Attempted int     `json:"attempted"`
	Passed    int     `json:"passed"`
	Perfect   int     `json:"perfect"`
	Percent   float64 `json:"percent"`
}

// CourseProgress keeps a course-wide Summary current. Any QuizCompleted
// event triggers a full recompute.
type CourseProgress struct {
	validator *reconcile.Validator
	quizzes   []string
	unsub     func()

	mu      sync.RWMutex
	summary Summary
}

// NewCourseProgress subscribes an aggregator over quizzes.
func NewCourseProgress(sub events.Subscriber, v *reconcile.Validator, quizzes []string) *CourseProgress {
	cp := &CourseProgress{
		validator: v,
		quizzes:   append([]string(nil), quizzes...),
		summary:   Summary{Total: len(quizzes)},
	}
	cp.unsub = sub.Subscribe(events.QuizCompleted, func(events.Event) {
		cp.Recompute(context.Background())
	})
	return cp
}

// Recompute rebuilds the summary from reconciled quiz records.
func (cp *CourseProgress) Recompute(ctx context.Context) Summary {
	s := Summary{Total: len(cp.quizzes)}
	for _, slug := range cp.quizzes {
		rec := cp.validator.Resolve(ctx, records.KindQuizAttempt, slug).Data()
		if rec == nil {
			continue
		}
		s.Attempted++
		if rec.Passed {
			s.Passed++
		}
		if rec.Perfect() {
			s.Perfect++
		}
	}
	if s.Total > 0 {
		s.Percent = float64(s.Passed) / float64(s.Total) * 100
	}

	cp.mu.Lock()
	cp.summary = s
	cp.mu.Unlock()
	return s
}

// Summary returns the last computed summary.
func (cp *CourseProgress) Summary() Summary {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.summary
}

// Close unsubscribes from the bus.
func (cp *CourseProgress) Close() {
	cp.unsub()
}
