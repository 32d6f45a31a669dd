package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/lmscache/internal/appctx"
	"github.com/learnhub/lmscache/internal/config"
	"github.com/learnhub/lmscache/internal/content"
	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/records"
)

// --- Test helpers ---

type fakeFetcher struct {
	calls atomic.Int32
	items map[string][]content.Item // keyed by content type
	err   error
}

func (f *fakeFetcher) List(_ context.Context, contentType string, _ map[string]string) ([]content.Item, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.items[contentType], nil
}

type failingWriter struct{}

func (failingWriter) InsertRecord(context.Context, string, records.Kind, string, *records.Record) error {
	return errors.New("database is locked")
}

type envelope struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Summary string          `json:"summary"`
	Warning string          `json:"warning"`
}

// setupTestApp creates an app over a temp state dir with JSON output into
// the returned buffer, signed in as u1.
func setupTestApp(t *testing.T) (*appctx.App, *bytes.Buffer, *fakeFetcher) {
	t.Helper()

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("LMSCACHE_NO_KEYRING", "1")
	t.Setenv("LMSCACHE_USER", "")
	t.Setenv(appctx.DebugEnv, "")

	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.CMSURL = "https://cms.example.test"

	return newSessionApp(t, cfg)
}

// newSessionApp builds an app over cfg as a fresh process would.
func newSessionApp(t *testing.T, cfg *config.Config) (*appctx.App, *bytes.Buffer, *fakeFetcher) {
	t.Helper()

	app := appctx.NewApp(cfg, appctx.GlobalFlags{JSON: true})
	t.Cleanup(func() { _ = app.Close() })

	buf := &bytes.Buffer{}
	app.Output = output.New(output.Options{
		Format: output.FormatJSON,
		Writer: buf,
	})

	fetcher := &fakeFetcher{items: map[string][]content.Item{
		content.TypeCourses: {{Slug: "web-basics", Title: "Web Basics"}},
		content.TypeLessons: {{Slug: "intro", Title: "Intro", Course: "web-basics", Order: 1}},
		content.TypeModules: {{Slug: "html", Title: "HTML", Course: "web-basics", Order: 1}},
		content.TypeQuizzes: {
			{Slug: "html-quiz", Title: "HTML Quiz", Course: "web-basics"},
			{Slug: "css-quiz", Title: "CSS Quiz", Course: "web-basics"},
		},
	}}
	app.Content = content.NewService(fetcher, app.Cache)

	_, err := app.Auth.Login("u1", "u1@example.test")
	require.NoError(t, err)

	return app, buf, fetcher
}

// executeCommand executes a cobra command with the given app context and args.
func executeCommand(cmd *cobra.Command, app *appctx.App, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetContext(appctx.WithApp(context.Background(), app))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

// lastEnvelope decodes the most recent response written to buf and resets it.
func lastEnvelope(t *testing.T, buf *bytes.Buffer) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(buf.Bytes(), &env), buf.String())
	buf.Reset()
	return env
}

func dataMap(t *testing.T, env envelope) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}
