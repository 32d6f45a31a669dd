package commands

import (
	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/progress"
	"github.com/learnhub/lmscache/internal/records"
)

// NewCompleteCmd creates the complete command.
func NewCompleteCmd() *cobra.Command {
	var course string

	cmd := &cobra.Command{
		Use:   "complete <item>",
		Short: "Mark a lesson or challenge complete",
		Long: `Mark a lesson or challenge complete for the signed-in user.

The completion is written to the progress database and mirrored locally.
If the database write fails the local copy is kept and a warning is shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			slug := args[0]

			indicator := progress.NewCompletionIndicator(app.Bus, app.Validator, slug)
			defer indicator.Close()

			rec, err := app.Recorder.CompleteItem(cmd.Context(), course, slug)
			warning, err := splitSyncWarning(err)
			if err != nil {
				return progressError(err)
			}

			view := map[string]any{
				"slug":      slug,
				"completed": indicator.Completed(),
				"source":    string(indicator.Source()),
			}
			if course != "" {
				view["course"] = course
			}
			recordFields(view, rec)

			opts := []output.ResponseOption{output.WithSummary("Completed " + slug)}
			if warning != "" {
				opts = append(opts, output.WithWarning(warning))
			}
			return app.OK(view, opts...)
		},
	}

	cmd.Flags().StringVar(&course, "course", "", "Course the item belongs to")

	return cmd
}

// NewViewCmd creates the view command.
func NewViewCmd() *cobra.Command {
	var course string

	cmd := &cobra.Command{
		Use:   "view <item>",
		Short: "Record that an item was viewed",
		Long:  "Record that an item was viewed. Viewed items are kept locally per course.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if course == "" {
				return output.ErrUsage("--course is required")
			}
			slug := args[0]

			added, err := app.Recorder.ViewItem(cmd.Context(), course, slug)
			if err != nil {
				return progressError(err)
			}

			userID, _ := app.Auth.CurrentUser(cmd.Context())
			viewed := app.Records.Items(records.Key{Kind: records.KindViewedItems, UserID: userID, Scope: course})

			summary := "Already viewed " + slug
			if added {
				summary = "Viewed " + slug
			}
			return app.OK(map[string]any{
				"slug":   slug,
				"course": course,
				"added":  added,
				"viewed": viewed,
			}, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVar(&course, "course", "", "Course the item belongs to")

	return cmd
}
