// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/learnhub/lmscache/internal/api"
	"github.com/learnhub/lmscache/internal/auth"
	"github.com/learnhub/lmscache/internal/config"
	"github.com/learnhub/lmscache/internal/content"
	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/localstore"
	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/progress"
	"github.com/learnhub/lmscache/internal/reconcile"
	"github.com/learnhub/lmscache/internal/records"
	"github.com/learnhub/lmscache/internal/remote"
	"github.com/learnhub/lmscache/internal/resilience"
	"github.com/learnhub/lmscache/internal/respcache"
)

// DebugEnv raises log verbosity like -v. "1", "2" or "true".
const DebugEnv = "LMSCACHE_DEBUG"

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config *config.Config
	Output *output.Writer
	Logger *slog.Logger

	// Storage
	KV      localstore.KV
	Cache   *respcache.Store
	Records *records.Store
	Remote  *remote.Store

	// Progress plumbing
	Bus         *events.Bus
	Auth        *auth.Manager
	Validator   *reconcile.Validator
	Recorder    *progress.Recorder
	Detector    *progress.ResetDetector
	Invalidator *progress.Invalidator
	Content     *content.Service
	Breaker     *resilience.Breaker

	// Flags holds the global flag values
	Flags GlobalFlags

	remoteErr   error
	sessionOnce sync.Once
	resetSeen   bool
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Quiet  bool
	Styled bool // Force ANSI styled output (even when piped)
	JQ     string

	// Context flags
	CMSURL   string
	StateDir string
	Database string

	// Behavior flags
	Verbose   int  // 0=warn, 1=info, 2=debug (stacks with -v -v or -vv)
	Ephemeral bool // keep local state in memory only
}

// NewApp creates a new App with the given configuration and flags.
// A database that cannot be opened is not fatal: reads fall back to local
// records and RemoteErr reports why.
func NewApp(cfg *config.Config, flags GlobalFlags) *App {
	a := &App{Config: cfg, Flags: flags}
	a.Logger = newLogger(verboseLevel(flags.Verbose))
	a.ApplyFlags()

	if flags.Ephemeral {
		a.KV = localstore.NewMemory()
	} else {
		a.KV = localstore.NewFile(cfg.StateDir)
	}

	policy := respcache.DefaultPolicy()
	policy.SetDefault(cfg.DefaultTTL)
	policy.Override("modules", cfg.ModulesTTL)
	policy.Override("quizzes", cfg.QuizzesTTL)
	a.Cache = respcache.New(respcache.Options{
		Policy:   policy,
		Stats:    respcache.KVStats{KV: a.KV},
		Coalesce: cfg.Coalesce,
		Logger:   a.Logger,
	})

	a.Records = records.NewStore(a.KV, a.Logger)
	a.Bus = events.NewBus(a.Logger)
	a.Auth = auth.NewManager(cfg.CMSURL, auth.NewStore(config.GlobalConfigDir()))

	a.Remote, a.remoteErr = openRemote(cfg.Database())
	if a.remoteErr != nil {
		a.Logger.Warn("progress database unavailable, using local records only",
			"path", cfg.Database(), "error", a.remoteErr)
	}

	a.Validator = reconcile.NewValidator(a.Auth, a.Remote, a.Records, a.Logger)
	a.Recorder = progress.NewRecorder(a.Auth, a.Remote, a.Records, a.Bus, a.Logger)
	a.Invalidator = progress.NewInvalidator(a.Bus, a.Auth, a.Records, a.Cache, a.Logger)
	a.Detector = progress.NewResetDetector(a.Remote, a.KV, a.Bus, a.Logger)

	client := api.NewClient(cfg.CMSURL, a.Logger)
	if !flags.Ephemeral {
		a.Breaker = resilience.NewBreaker(resilience.NewStore(cfg.StateDir), resilience.BreakerConfig{})
		client.SetBreaker(a.Breaker)
	}
	a.Content = content.NewService(content.NewHTTPFetcher(client), a.Cache)

	return a
}

func openRemote(path string) (*remote.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	return remote.Open(path)
}

// verboseLevel folds LMSCACHE_DEBUG into the -v count.
func verboseLevel(flagLevel int) int {
	level := flagLevel
	if debugEnv := os.Getenv(DebugEnv); debugEnv != "" {
		if n, err := strconv.Atoi(debugEnv); err == nil {
			if n > level {
				level = n
			}
		} else if debugEnv == "true" {
			level = 2
		}
	}
	return level
}

func newLogger(level int) *slog.Logger {
	lvl := slog.LevelWarn
	switch {
	case level >= 2:
		lvl = slog.LevelDebug
	case level == 1:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ApplyFlags applies global flag values to the output writer.
func (a *App) ApplyFlags() {
	format := output.FormatAuto
	if a.Config != nil {
		switch a.Config.Format {
		case "json":
			format = output.FormatJSON
		case "styled":
			format = output.FormatStyled
		case "quiet":
			format = output.FormatQuiet
		}
	}

	// Order matters: specific modes first
	switch {
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON || a.Flags.JQ != "":
		format = output.FormatJSON
	case a.Flags.Styled:
		format = output.FormatStyled
	}

	a.Output = output.New(output.Options{
		Format: format,
		Writer: os.Stdout,
		JQ:     a.Flags.JQ,
		Locale: output.DetectLocale(),
	})
}

// RemoteErr reports why the progress database could not be opened, if it
// could not.
func (a *App) RemoteErr() error {
	return a.remoteErr
}

// StartSession checks once for an out-of-band database reset and purges
// local progress when one is found. Later calls return the first result.
// A failed check is logged and treated as no reset.
func (a *App) StartSession(ctx context.Context) bool {
	a.sessionOnce.Do(func() {
		if a.Remote == nil {
			return
		}
		fired, err := a.Detector.Check(ctx)
		if err != nil {
			a.Logger.Warn("reset check failed", "error", err)
			return
		}
		a.resetSeen = fired
	})
	return a.resetSeen
}

// RequireRemote returns a storage error when the database is unavailable.
func (a *App) RequireRemote() error {
	if a.Remote != nil {
		return nil
	}
	if a.remoteErr != nil {
		return output.ErrStorage("progress database unavailable", a.remoteErr)
	}
	return output.ErrStorage("progress database unavailable", remote.ErrNotConfigured)
}

// OK outputs a success response.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	return a.Output.OK(data, opts...)
}

// Err outputs an error response.
func (a *App) Err(err error) error {
	return a.Output.Err(err)
}

// Close releases subscriptions and the database handle.
func (a *App) Close() error {
	if a.Invalidator != nil {
		a.Invalidator.Close()
	}
	return a.Remote.Close()
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
