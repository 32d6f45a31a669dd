package commands

import (
	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/events"
	"github.com/learnhub/lmscache/internal/output"
)

// NewResetCmd creates the reset command.
func NewResetCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Purge local progress after a database reset",
		Long: `Purge local progress after a database reset.

Without flags the purge runs unconditionally: the signed-in user's local
records, every cached response and the call counters are removed.
With --check the purge only runs if the progress database generation has
changed since it was last seen. Every command already runs this check once
at startup; --check reports whether either run found a reset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if !check {
				app.Bus.Publish(events.Event{Kind: events.BulkReset})
				return app.OK(map[string]any{"purged": true},
					output.WithSummary("Local progress and cached responses purged"))
			}

			if err := app.RequireRemote(); err != nil {
				return err
			}
			atStart := app.StartSession(cmd.Context())
			fired, err := app.Detector.Check(cmd.Context())
			if err != nil {
				return output.ErrStorage("checking database generation", err)
			}
			fired = fired || atStart
			generation, err := app.Remote.Generation(cmd.Context())
			if err != nil {
				return output.ErrStorage("reading database generation", err)
			}

			summary := "No reset detected"
			if fired {
				summary = "Database reset detected; local progress purged"
			}
			return app.OK(map[string]any{
				"reset_detected": fired,
				"purged":         fired,
				"generation":     generation,
			}, output.WithSummary(summary))
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Only purge if the database was reset")

	return cmd
}
