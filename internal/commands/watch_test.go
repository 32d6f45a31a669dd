package commands

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWatch_PurgesOnSentinelTouch(t *testing.T) {
	app, buf, _ := setupTestApp(t)
	require.NoError(t, executeCommand(NewQuizCmd(), app, "submit", "html-quiz", "--score", "9", "--total", "10"))
	buf.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record the starting generation before the watcher runs.
	_, err := app.Detector.Check(ctx)
	require.NoError(t, err)

	sentinel := app.Config.Sentinel()
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, app, &bytes.Buffer{}, sentinel, 0) }()

	generation, err := app.Remote.Reseed(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = touchSentinel(sentinel, generation)
		_, ok := app.Records.Load(attemptKey())
		return !ok
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	data := dataMap(t, lastEnvelope(t, buf))
	assert.Equal(t, sentinel, data["sentinel"])
	assert.Equal(t, 1.0, data["resets"])
}

func TestWatchCmd_RequiresDatabase(t *testing.T) {
	app, _, _ := setupTestApp(t)
	require.NoError(t, app.Remote.Close())
	app.Remote = nil

	err := executeCommand(NewWatchCmd(), app)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress database unavailable")
}

func TestRunWatch_PollServesCoursesFromCache(t *testing.T) {
	app, buf, fetcher := setupTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, app, &bytes.Buffer{}, app.Config.Sentinel(), 10*time.Millisecond) }()

	require.Eventually(t, func() bool {
		return app.Cache.GetStats().CacheHits >= 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	assert.Equal(t, int32(1), fetcher.calls.Load(), "polls inside the TTL reuse the cached list")
	stats := app.Cache.GetStats()
	assert.Equal(t, uint64(1), stats.TotalCalls)
	assert.Equal(t, uint64(1), stats.CacheMisses)
	polls, _ := dataMap(t, lastEnvelope(t, buf))["polls"].(float64)
	assert.GreaterOrEqual(t, polls, 3.0)
}
