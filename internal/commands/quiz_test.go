package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/progress"
	"github.com/learnhub/lmscache/internal/records"
)

func TestQuizSubmit_RecordsAndReconciles(t *testing.T) {
	app, buf, _ := setupTestApp(t)

	require.NoError(t, executeCommand(NewQuizCmd(), app, "submit", "html-quiz", "--score", "10", "--total", "10"))
	env := lastEnvelope(t, buf)
	assert.True(t, env.OK)
	assert.Empty(t, env.Warning)
	data := dataMap(t, env)
	assert.Equal(t, true, data["passed"])
	assert.Equal(t, true, data["perfect"])
	assert.Equal(t, 100.0, data["score_percentage"])

	require.NoError(t, executeCommand(NewQuizCmd(), app, "status", "html-quiz"))
	status := dataMap(t, lastEnvelope(t, buf))
	assert.Equal(t, "database", status["source"])
	assert.Equal(t, true, status["perfect"])
	assert.Equal(t, true, status["is_valid"])
}

func TestQuizSubmit_FailingScore(t *testing.T) {
	app, buf, _ := setupTestApp(t)

	require.NoError(t, executeCommand(NewQuizCmd(), app, "submit", "html-quiz", "--score", "6", "--total", "10"))

	data := dataMap(t, lastEnvelope(t, buf))
	assert.Equal(t, false, data["passed"])
	assert.Equal(t, false, data["perfect"])
}

func TestQuizSubmit_Validation(t *testing.T) {
	app, _, _ := setupTestApp(t)

	for _, args := range [][]string{
		{"submit", "q", "--score", "3", "--total", "0"},
		{"submit", "q", "--score", "11", "--total", "10"},
		{"submit", "q", "--score", "-1", "--total", "10"},
	} {
		err := executeCommand(NewQuizCmd(), app, args...)
		require.Error(t, err, "%v", args)
		assert.Equal(t, output.CodeUsage, output.AsError(err).Code, "%v", args)
	}
}

func TestQuizSubmit_NotSignedIn(t *testing.T) {
	app, _, _ := setupTestApp(t)
	require.NoError(t, app.Auth.Logout())

	err := executeCommand(NewQuizCmd(), app, "submit", "q", "--score", "1", "--total", "2")

	require.Error(t, err)
	assert.Equal(t, output.CodeAuth, output.AsError(err).Code)
}

func TestQuizSubmit_DatabaseFailureWarns(t *testing.T) {
	app, buf, _ := setupTestApp(t)
	app.Recorder = progress.NewRecorder(app.Auth, failingWriter{}, app.Records, app.Bus, nil)

	require.NoError(t, executeCommand(NewQuizCmd(), app, "submit", "html-quiz", "--score", "9", "--total", "10"))

	env := lastEnvelope(t, buf)
	assert.True(t, env.OK)
	assert.Equal(t, notSyncedWarning, env.Warning)

	_, ok := app.Records.Load(records.Key{Kind: records.KindQuizAttempt, UserID: "u1", Scope: "html-quiz"})
	assert.True(t, ok, "the attempt is kept locally")

	require.NoError(t, executeCommand(NewQuizCmd(), app, "status", "html-quiz"))
	assert.Equal(t, "local", dataMap(t, lastEnvelope(t, buf))["source"])
}

func TestQuizStatus_NoAttempts(t *testing.T) {
	app, buf, _ := setupTestApp(t)

	require.NoError(t, executeCommand(NewQuizCmd(), app, "status", "never-taken"))

	env := lastEnvelope(t, buf)
	assert.Equal(t, "No attempts for never-taken", env.Summary)
	data := dataMap(t, env)
	assert.Equal(t, "none", data["source"])
	assert.Equal(t, false, data["perfect"])
	assert.NotContains(t, data, "score")
}

func TestQuizStatus_NewSessionAfterReseed(t *testing.T) {
	app, buf, _ := setupTestApp(t)
	app.StartSession(context.Background())
	require.NoError(t, executeCommand(NewQuizCmd(), app, "submit", "html-quiz", "--score", "10", "--total", "10"))
	_, err := app.Remote.Reseed(context.Background())
	require.NoError(t, err)
	buf.Reset()

	next, buf, _ := newSessionApp(t, app.Config)
	require.True(t, next.StartSession(context.Background()))

	require.NoError(t, executeCommand(NewQuizCmd(), next, "status", "html-quiz"))

	data := dataMap(t, lastEnvelope(t, buf))
	assert.Equal(t, "none", data["source"])
	assert.Equal(t, false, data["perfect"])
	_, ok := next.Records.Load(attemptKey())
	assert.False(t, ok, "the pre-reset attempt is purged")
}
