package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/output"
)

// NewAdminCmd creates the admin command group.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Progress database administration",
	}

	cmd.AddCommand(newAdminReseedCmd())

	return cmd
}

func newAdminReseedCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reseed",
		Short: "Wipe the progress database and start a new generation",
		Long: `Wipe every progress record in the database and start a new generation.

The reset sentinel is touched afterwards so running "lmscache watch"
processes purge their local state.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if !yes {
				return output.ErrUsageHint("Reseeding deletes every progress record", "Re-run with --yes to confirm")
			}
			if err := app.RequireRemote(); err != nil {
				return err
			}
			ctx := cmd.Context()

			// Record the current generation so the post-reseed check fires.
			if _, err := app.Detector.Check(ctx); err != nil {
				return output.ErrStorage("reading database generation", err)
			}

			generation, err := app.Remote.Reseed(ctx)
			if err != nil {
				return output.ErrStorage("reseeding progress database", err)
			}

			sentinel := app.Config.Sentinel()
			if err := touchSentinel(sentinel, generation); err != nil {
				app.Logger.Warn("touching reset sentinel", "path", sentinel, "error", err)
			}

			fired, err := app.Detector.Check(ctx)
			if err != nil {
				return output.ErrStorage("checking database generation", err)
			}
			// The detector announces once per session.
			if !fired {
				app.Bus.Publish(events.Event{Kind: events.BulkReset})
			}

			return app.OK(map[string]any{
				"generation": generation,
				"sentinel":   sentinel,
				"purged":     true,
			}, output.WithSummary("Progress database reseeded"))
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reseed")

	return cmd
}

// touchSentinel atomically replaces the sentinel with the new generation.
func touchSentinel(path, generation string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(generation+"\n"), 0600); err != nil {
		return fmt.Errorf("writing sentinel: %w", err)
	}
	return os.Rename(tmp, path)
}
