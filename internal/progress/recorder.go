package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/reconcile"
	"github.com/learnhub/lmscache/internal/records"
)

var (
	// ErrNotSignedIn is returned when progress is recorded without a user.
	ErrNotSignedIn = errors.New("sign in to record progress")

	// ErrNotSynced wraps a database write failure after the local write
	// succeeded. The progress is kept locally.
	ErrNotSynced = errors.New("saved locally but not synced")
)

// Recorder records completions and quiz submissions: database first, then
// the local mirror, then the event that tells listeners to re-derive.
type Recorder struct {
	users  reconcile.UserResolver
	remote RecordWriter
	local  *records.Store
	pub    events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(users reconcile.UserResolver, remote RecordWriter, local *records.Store, pub events.Publisher, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{users: users, remote: remote, local: local, pub: pub, logger: logger, now: time.Now}
}

// SetClock replaces the recorder's time source.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// timestamp truncates to the database's millisecond precision so local and
// remote copies of the same record compare equal.
func (r *Recorder) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

func (r *Recorder) user(ctx context.Context) (string, error) {
	if r.users == nil {
		return "", ErrNotSignedIn
	}
	id, err := r.users.CurrentUser(ctx)
	if err != nil || id == "" {
		return "", ErrNotSignedIn
	}
	return id, nil
}

// CompleteItem marks slug complete for the current user and adds it to the
// course's completed list.
func (r *Recorder) CompleteItem(ctx context.Context, course, slug string) (*records.Record, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, fmt.Errorf("item slug is required")
	}
	userID, err := r.user(ctx)
	if err != nil {
		return nil, err
	}

	rec := &records.Record{Score: 1, Passed: true, CompletedAt: r.timestamp()}
	remoteErr := r.remote.InsertRecord(ctx, userID, records.KindChallenge, slug, rec)
	if remoteErr != nil {
		r.logger.Warn("database write failed, keeping completion locally", "slug", slug, "error", remoteErr)
	}

	if _, err := r.local.Supersede(records.Key{Kind: records.KindChallenge, UserID: userID, Scope: slug}, rec); err != nil {
		return nil, fmt.Errorf("saving completion: %w", err)
	}
	if course != "" {
		if _, err := r.local.AddItem(records.Key{Kind: records.KindCompletedItems, UserID: userID, Scope: course}, slug); err != nil {
			return nil, fmt.Errorf("updating completed items: %w", err)
		}
	}

	r.pub.Publish(events.Event{Kind: events.ItemCompleted, Slug: slug})

	if remoteErr != nil {
		return rec, fmt.Errorf("%w: %w", ErrNotSynced, remoteErr)
	}
	return rec, nil
}

// ViewItem adds slug to the course's viewed list. It reports whether the
// list changed.
func (r *Recorder) ViewItem(ctx context.Context, course, slug string) (bool, error) {
	if strings.TrimSpace(course) == "" || strings.TrimSpace(slug) == "" {
		return false, fmt.Errorf("course and item slug are required")
	}
	userID, err := r.user(ctx)
	if err != nil {
		return false, err
	}
	return r.local.AddItem(records.Key{Kind: records.KindViewedItems, UserID: userID, Scope: course}, slug)
}

// SubmitQuiz records a quiz result for the current user.
func (r *Recorder) SubmitQuiz(ctx context.Context, quizSlug string, score, total int) (*records.Record, error) {
	quizSlug = strings.TrimSpace(quizSlug)
	if quizSlug == "" {
		return nil, fmt.Errorf("quiz slug is required")
	}
	if total <= 0 {
		return nil, fmt.Errorf("total must be positive, got %d", total)
	}
	if score < 0 || score > total {
		return nil, fmt.Errorf("score must be between 0 and %d, got %d", total, score)
	}
	userID, err := r.user(ctx)
	if err != nil {
		return nil, err
	}

	pct := float64(score) / float64(total) * 100
	rec := &records.Record{
		Score:           score,
		Total:           &total,
		ScorePercentage: pct,
		Passed:          pct >= PassThreshold,
		CompletedAt:     r.timestamp(),
	}

	remoteErr := r.remote.InsertRecord(ctx, userID, records.KindQuizAttempt, quizSlug, rec)
	if remoteErr != nil {
		r.logger.Warn("database write failed, keeping quiz result locally", "quiz", quizSlug, "error", remoteErr)
	}

	if err := r.local.Save(records.Key{Kind: records.KindQuizAttempt, UserID: userID, Scope: quizSlug}, rec); err != nil {
		return nil, fmt.Errorf("saving quiz attempt: %w", err)
	}
	if err := r.local.Save(records.Key{Kind: records.KindQuizLast, Scope: quizSlug}, rec); err != nil {
		r.logger.Warn("saving last quiz result", "quiz", quizSlug, "error", err)
	}

	r.pub.Publish(events.Event{Kind: events.QuizCompleted, Slug: quizSlug})

	if remoteErr != nil {
		return rec, fmt.Errorf("%w: %w", ErrNotSynced, remoteErr)
	}
	return rec, nil
}
