package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lmscache/internal/localstore"
	"github.com/learnhub/lmscache/internal/respcache"
)

func TestCacheStatsCmd(t *testing.T) {
	app, buf, _ := setupTestApp(t)
	require.NoError(t, executeCommand(NewLessonsCmd(), app, "web-basics"))
	require.NoError(t, executeCommand(NewLessonsCmd(), app, "web-basics"))
	buf.Reset()

	require.NoError(t, executeCommand(NewCacheCmd(), app, "stats"))

	data := dataMap(t, lastEnvelope(t, buf))
	assert.Equal(t, 1.0, data["total_calls"])
	assert.Equal(t, 1.0, data["cache_hits"])
	assert.Equal(t, 1.0, data["cache_misses"])
	assert.Equal(t, 0.5, data["hit_rate"])
	assert.Equal(t, 1.0, data["entries"])
	assert.Equal(t, "closed", data["cms_circuit"])
}

func TestCacheStatsCmd_Reset(t *testing.T) {
	app, buf, _ := setupTestApp(t)
	require.NoError(t, executeCommand(NewLessonsCmd(), app, "web-basics"))
	buf.Reset()

	require.NoError(t, executeCommand(NewCacheCmd(), app, "stats", "--reset"))

	env := lastEnvelope(t, buf)
	assert.Equal(t, "Counters reset", env.Summary)
	assert.Equal(t, 0.0, dataMap(t, env)["total_calls"])
	assert.Equal(t, 1, app.Cache.Len(), "reset keeps cached entries")
}

func TestCacheStats_PersistAcrossRuns(t *testing.T) {
	app, _, _ := setupTestApp(t)
	require.NoError(t, executeCommand(NewLessonsCmd(), app, "web-basics"))

	next := respcache.New(respcache.Options{
		Stats: respcache.KVStats{KV: localstore.NewFile(app.Config.StateDir)},
	})

	assert.Equal(t, uint64(1), next.GetStats().TotalCalls)
	assert.Zero(t, next.Len(), "responses are not persisted")
}

func TestCacheClearCmd(t *testing.T) {
	app, buf, fetcher := setupTestApp(t)
	require.NoError(t, executeCommand(NewLessonsCmd(), app, "web-basics"))
	require.NoError(t, executeCommand(NewModulesCmd(), app, "web-basics"))
	buf.Reset()

	require.NoError(t, executeCommand(NewCacheCmd(), app, "clear"))
	assert.Equal(t, 2.0, dataMap(t, lastEnvelope(t, buf))["removed"])

	require.NoError(t, executeCommand(NewLessonsCmd(), app, "web-basics"))
	assert.Equal(t, int32(3), fetcher.calls.Load(), "cleared entries are refetched")
}

func TestCacheCleanupCmd(t *testing.T) {
	app, buf, _ := setupTestApp(t)
	now := time.Now()
	app.Cache = respcache.New(respcache.Options{Now: func() time.Time { return now }})
	app.Cache.Set("/api/lessons", "short", nil, time.Minute)
	app.Cache.Set("/api/modules", "long", nil, time.Hour)
	now = now.Add(2 * time.Minute)

	require.NoError(t, executeCommand(NewCacheCmd(), app, "cleanup"))

	data := dataMap(t, lastEnvelope(t, buf))
	assert.Equal(t, 1.0, data["removed"])
	assert.Equal(t, 1.0, data["entries"])
}
