package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/appctx"
	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/output"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var sentinel string
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Purge local state whenever the database is reset",
		Long: `Watch the reset sentinel and purge local state whenever the progress
database generation changes. Expired responses are swept on the janitor
interval. With --poll the course list is re-read on that interval through
the response cache, so polls inside the TTL are served without a CMS call.
Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if err := app.RequireRemote(); err != nil {
				return err
			}
			if sentinel == "" {
				sentinel = app.Config.Sentinel()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, app, cmd.ErrOrStderr(), sentinel, poll)
		},
	}

	cmd.Flags().StringVar(&sentinel, "sentinel", "", "Reset sentinel file (default: <state-dir>/reset.stamp)")
	cmd.Flags().DurationVar(&poll, "poll", 0, "Re-read the course list on this interval (0 disables)")

	return cmd
}

func runWatch(ctx context.Context, app *appctx.App, stderr io.Writer, sentinel string, poll time.Duration) error {
	resets := 0
	unsub := app.Bus.Subscribe(events.BulkReset, func(events.Event) {
		resets++
		fmt.Fprintln(stderr, "database reset detected, local progress purged")
	})
	defer unsub()

	app.Cache.StartJanitor(ctx, app.Config.JanitorInterval)

	var polls atomic.Int64
	pollDone := make(chan struct{})
	if poll > 0 {
		go func() {
			defer close(pollDone)
			pollCourses(ctx, app, poll, &polls)
		}()
	} else {
		close(pollDone)
	}

	fmt.Fprintf(stderr, "watching %s (Ctrl-C to stop)\n", sentinel)
	err := app.Detector.Watch(ctx, sentinel)
	<-pollDone
	if err != nil {
		return output.ErrStorage("watching reset sentinel", err)
	}

	return app.OK(map[string]any{"sentinel": sentinel, "resets": resets, "polls": polls.Load()},
		output.WithSummary(fmt.Sprintf("Stopped after %d reset(s)", resets)))
}

// pollCourses reads the course list every interval until ctx is done.
func pollCourses(ctx context.Context, app *appctx.App, interval time.Duration, polls *atomic.Int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.Content.Courses(ctx); err != nil {
				app.Logger.Warn("polling courses", "error", err)
				continue
			}
			polls.Add(1)
		}
	}
}
