package progress

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/localstore"
	"github.com/learnhub/lmscache/internal/reconcile"
	"github.com/learnhub/lmscache/internal/records"
	"github.com/learnhub/lmscache/internal/remote"
	"github.com/learnhub/lmscache/internal/respcache"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type staticUser string

func (u staticUser) CurrentUser(context.Context) (string, error) {
	if u == "" {
		return "", errors.New("not signed in")
	}
	return string(u), nil
}

type rowKey struct {
	user  string
	kind  records.Kind
	scope string
}

// memRemote is an in-memory authoritative store.
type memRemote struct {
	mu        sync.Mutex
	rows      map[rowKey]*records.Record
	insertErr error
	queries   map[string]int
}

func newMemRemote() *memRemote {
	return &memRemote{rows: make(map[rowKey]*records.Record), queries: make(map[string]int)}
}

func (m *memRemote) LatestRecord(_ context.Context, userID string, kind records.Kind, scope string) (*records.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[scope]++
	return m.rows[rowKey{userID, kind, scope}], nil
}

func (m *memRemote) InsertRecord(_ context.Context, userID string, kind records.Kind, scope string, rec *records.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *rec
	m.rows[rowKey{userID, kind, scope}] = &cp
	return nil
}

func (m *memRemote) queryCount(scope string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries[scope]
}

type harness struct {
	bus       *events.Bus
	kv        *localstore.Memory
	local     *records.Store
	remote    *memRemote
	validator *reconcile.Validator
	recorder  *Recorder
}

func newHarness(t *testing.T, user string) *harness {
	t.Helper()
	h := &harness{
		bus:    events.NewBus(nil),
		kv:     localstore.NewMemory(),
		remote: newMemRemote(),
	}
	h.local = records.NewStore(h.kv, nil)
	h.validator = reconcile.NewValidator(staticUser(user), h.remote, h.local, nil)
	h.recorder = NewRecorder(staticUser(user), h.remote, h.local, h.bus, nil)
	h.recorder.SetClock(func() time.Time { return t0 })
	return h
}

func TestRecorder_SubmitQuiz(t *testing.T) {
	h := newHarness(t, "u1")
	var got []events.Event
	h.bus.Subscribe(events.QuizCompleted, func(e events.Event) { got = append(got, e) })

	rec, err := h.recorder.SubmitQuiz(context.Background(), "html-quiz", 7, 10)
	require.NoError(t, err)

	assert.InDelta(t, 70.0, rec.ScorePercentage, 0.001)
	assert.True(t, rec.Passed, "70% passes")
	require.NotNil(t, rec.Total)
	assert.Equal(t, 10, *rec.Total)

	attempt, ok := h.local.Load(records.Key{Kind: records.KindQuizAttempt, UserID: "u1", Scope: "html-quiz"})
	require.True(t, ok)
	assert.True(t, rec.Equal(attempt))

	last, ok := h.local.Load(records.Key{Kind: records.KindQuizLast, Scope: "html-quiz"})
	require.True(t, ok)
	assert.True(t, rec.Equal(last))

	remoteRec, _ := h.remote.LatestRecord(context.Background(), "u1", records.KindQuizAttempt, "html-quiz")
	assert.True(t, rec.Equal(remoteRec))

	assert.Equal(t, []events.Event{{Kind: events.QuizCompleted, Slug: "html-quiz"}}, got)
}

func TestRecorder_SubmitQuizFailing(t *testing.T) {
	h := newHarness(t, "u1")
	rec, err := h.recorder.SubmitQuiz(context.Background(), "q", 6, 10)
	require.NoError(t, err)
	assert.False(t, rec.Passed)
}

func TestRecorder_SubmitQuizValidation(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	for _, tc := range []struct {
		slug         string
		score, total int
	}{
		{"", 1, 1},
		{"q", 1, 0},
		{"q", -1, 10},
		{"q", 11, 10},
	} {
		_, err := h.recorder.SubmitQuiz(ctx, tc.slug, tc.score, tc.total)
		assert.Error(t, err, "%+v", tc)
	}
}

func TestRecorder_RequiresUser(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	_, err := h.recorder.SubmitQuiz(ctx, "q", 1, 1)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	_, err = h.recorder.CompleteItem(ctx, "html", "intro")
	assert.ErrorIs(t, err, ErrNotSignedIn)
	_, err = h.recorder.ViewItem(ctx, "html", "intro")
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Empty(t, h.kv.Keys())
}

func TestRecorder_RemoteFailureKeepsLocalProgress(t *testing.T) {
	h := newHarness(t, "u1")
	h.remote.insertErr = errors.New("database is locked")
	published := 0
	h.bus.Subscribe(events.QuizCompleted, func(events.Event) { published++ })

	rec, err := h.recorder.SubmitQuiz(context.Background(), "q", 10, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSynced)
	require.NotNil(t, rec)

	_, ok := h.local.Load(records.Key{Kind: records.KindQuizAttempt, UserID: "u1", Scope: "q"})
	assert.True(t, ok, "local write happens despite remote failure")
	assert.Equal(t, 1, published)
}

func TestRecorder_CompleteItem(t *testing.T) {
	h := newHarness(t, "u1")
	var got []events.Event
	h.bus.Subscribe(events.ItemCompleted, func(e events.Event) { got = append(got, e) })

	_, err := h.recorder.CompleteItem(context.Background(), "html", "intro")
	require.NoError(t, err)

	rec, ok := h.local.Load(records.Key{Kind: records.KindChallenge, UserID: "u1", Scope: "intro"})
	require.True(t, ok)
	assert.True(t, rec.Passed)
	assert.Equal(t, []string{"intro"}, h.local.Items(records.Key{Kind: records.KindCompletedItems, UserID: "u1", Scope: "html"}))
	assert.Equal(t, []events.Event{{Kind: events.ItemCompleted, Slug: "intro"}}, got)
}

func TestRecorder_ViewItem(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	changed, err := h.recorder.ViewItem(ctx, "html", "intro")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.recorder.ViewItem(ctx, "html", "intro")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = h.recorder.ViewItem(ctx, "", "intro")
	assert.Error(t, err)
}

func TestCompletionIndicator_FiltersBySlug(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	froggy := NewCompletionIndicator(h.bus, h.validator, "froggy")
	defer froggy.Close()
	grid := NewCompletionIndicator(h.bus, h.validator, "grid-garden")
	defer grid.Close()

	assert.False(t, froggy.Refresh(ctx))
	assert.False(t, grid.Refresh(ctx))
	gridQueries := h.remote.queryCount("grid-garden")

	_, err := h.recorder.CompleteItem(ctx, "css", "froggy")
	require.NoError(t, err)

	assert.True(t, froggy.Completed())
	assert.Equal(t, reconcile.SourceDatabase, froggy.Source())
	assert.False(t, grid.Completed())
	assert.Equal(t, gridQueries, h.remote.queryCount("grid-garden"), "other indicators do not re-derive")
}

func TestCompletionIndicator_Close(t *testing.T) {
	h := newHarness(t, "u1")
	ci := NewCompletionIndicator(h.bus, h.validator, "froggy")
	require.Equal(t, 1, h.bus.Listeners(events.ItemCompleted))

	ci.Close()
	ci.Close()
	assert.Equal(t, 0, h.bus.Listeners(events.ItemCompleted))
}

func TestQuizStatus_Perfect(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()
	status := NewQuizStatus(h.validator)

	perfect, res := status.Perfect(ctx, "html-quiz")
	assert.False(t, perfect)
	assert.Equal(t, reconcile.SourceNone, res.Source())

	_, err := h.recorder.SubmitQuiz(ctx, "html-quiz", 10, 10)
	require.NoError(t, err)

	perfect, res = status.Perfect(ctx, "html-quiz")
	assert.True(t, perfect)
	assert.Equal(t, reconcile.SourceDatabase, res.Source())
}

func TestCourseProgress_RecomputesOnQuizCompleted(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()

	cp := NewCourseProgress(h.bus, h.validator, []string{"q1", "q2", "q3", "q4"})
	defer cp.Close()
	assert.Equal(t, Summary{Total: 4}, cp.Recompute(ctx))

	_, err := h.recorder.SubmitQuiz(ctx, "q1", 10, 10)
	require.NoError(t, err)
	_, err = h.recorder.SubmitQuiz(ctx, "q2", 5, 10)
	require.NoError(t, err)

	assert.Equal(t, Summary{Total: 4, Attempted: 2, Passed: 1, Perfect: 1, Percent: 25}, cp.Summary())
}

func TestInvalidator_BulkResetClearsEverything(t *testing.T) {
	h := newHarness(t, "u1")
	ctx := context.Background()
	cache := respcache.New(respcache.Options{Stats: respcache.KVStats{KV: h.kv}})

	inv := NewInvalidator(h.bus, staticUser("u1"), h.local, cache, nil)
	defer inv.Close()

	_, err := respcache.WithCache(ctx, cache, "/api/lessons", func(context.Context) ([]string, error) {
		return []string{"intro"}, nil
	}, respcache.Params{"course": "html"})
	require.NoError(t, err)
	_, ok := cache.Get("/api/lessons", respcache.Params{"course": "html"})
	require.True(t, ok)

	_, err = h.recorder.SubmitQuiz(ctx, "q1", 8, 10)
	require.NoError(t, err)
	theirs := records.Key{Kind: records.KindQuizAttempt, UserID: "u2", Scope: "q1"}
	require.NoError(t, h.local.Save(theirs, &records.Record{Score: 1, CompletedAt: t0}))

	h.bus.Publish(events.Event{Kind: events.BulkReset})

	assert.Equal(t, respcache.Stats{}, cache.GetStats())
	_, ok = cache.Get("/api/lessons", respcache.Params{"course": "html"})
	assert.False(t, ok, "previously cached key misses after reset")
	_, ok = h.local.Load(records.Key{Kind: records.KindQuizAttempt, UserID: "u1", Scope: "q1"})
	assert.False(t, ok)
	_, ok = h.local.Load(records.Key{Kind: records.KindQuizLast, Scope: "q1"})
	assert.False(t, ok)
	_, ok = h.local.Load(theirs)
	assert.True(t, ok, "other users' records are untouched")
}

type fakeGen struct {
	mu  sync.Mutex
	gen string
	err error
}

func (f *fakeGen) Generation(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen, f.err
}

func (f *fakeGen) set(gen string) {
	f.mu.Lock()
	f.gen = gen
	f.mu.Unlock()
}

func TestResetDetector_Check(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(nil)
	kv := localstore.NewMemory()
	gen := &fakeGen{gen: "g1"}
	resets := 0
	bus.Subscribe(events.BulkReset, func(events.Event) { resets++ })

	d := NewResetDetector(gen, kv, bus, nil)

	fired, err := d.Check(ctx)
	require.NoError(t, err)
	assert.False(t, fired, "first sighting is recorded silently")
	stored, _ := kv.Get(GenerationKey)
	assert.Equal(t, "g1", stored)

	fired, err = d.Check(ctx)
	require.NoError(t, err)
	assert.False(t, fired)

	gen.set("g2")
	fired, err = d.Check(ctx)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, 1, resets)

	gen.set("g3")
	fired, err = d.Check(ctx)
	require.NoError(t, err)
	assert.False(t, fired, "announced at most once per detector")
	assert.Equal(t, 1, resets)
	stored, _ = kv.Get(GenerationKey)
	assert.Equal(t, "g3", stored)

	next := NewResetDetector(gen, kv, bus, nil)
	fired, err = next.Check(ctx)
	require.NoError(t, err)
	assert.False(t, fired, "a new session sees the stored generation")
}

func TestResetDetector_RemoteError(t *testing.T) {
	bus := events.NewBus(nil)
	d := NewResetDetector(&fakeGen{err: errors.New("offline")}, localstore.NewMemory(), bus, nil)

	fired, err := d.Check(context.Background())
	assert.Error(t, err)
	assert.False(t, fired)
}

func TestResetDetector_WithDatabaseReseed(t *testing.T) {
	ctx := context.Background()
	db, err := remote.Open(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	defer db.Close()

	bus := events.NewBus(nil)
	kv := localstore.NewMemory()
	local := records.NewStore(kv, nil)
	cache := respcache.New(respcache.Options{})
	inv := NewInvalidator(bus, staticUser("u1"), local, cache, nil)
	defer inv.Close()
	rec := NewRecorder(staticUser("u1"), db, local, bus, nil)

	d := NewResetDetector(db, kv, bus, nil)
	_, err = d.Check(ctx)
	require.NoError(t, err)

	_, err = rec.SubmitQuiz(ctx, "q1", 9, 10)
	require.NoError(t, err)

	_, err = db.Reseed(ctx)
	require.NoError(t, err)

	fired, err := d.Check(ctx)
	require.NoError(t, err)
	assert.True(t, fired)
	_, ok := local.Load(records.Key{Kind: records.KindQuizAttempt, UserID: "u1", Scope: "q1"})
	assert.False(t, ok, "reset purges local records")
}

func TestResetDetector_Watch(t *testing.T) {
	dir := t.TempDir()
	sentinel := filepath.Join(dir, "reset.stamp")
	require.NoError(t, os.WriteFile(sentinel, []byte("0"), 0o644))

	bus := events.NewBus(nil)
	kv := localstore.NewMemory()
	gen := &fakeGen{gen: "g1"}
	var mu sync.Mutex
	resets := 0
	bus.Subscribe(events.BulkReset, func(events.Event) {
		mu.Lock()
		resets++
		mu.Unlock()
	})
	d := NewResetDetector(gen, kv, bus, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Watch(ctx, sentinel) }()

	require.Eventually(t, func() bool {
		_, ok := kv.Get(GenerationKey)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "initial check records the generation")

	gen.set("g2")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(sentinel, []byte(time.Now().String()), 0o644)
		mu.Lock()
		defer mu.Unlock()
		return resets == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestResetDetector_WatchRequiresPath(t *testing.T) {
	d := NewResetDetector(&fakeGen{}, localstore.NewMemory(), events.NewBus(nil), nil)
	assert.Error(t, d.Watch(context.Background(), ""))
}
