package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/completion"
	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/progress"
	"github.com/learnhub/lmscache/internal/records"
)

// NewProgressCmd creates the progress command.
func NewProgressCmd() *cobra.Command {
	var quizzes []string

	cmd := &cobra.Command{
		Use:   "progress <course>",
		Short: "Summarize quiz progress for a course",
		Long: `Summarize quiz progress for a course.

Without --quiz the course's quiz list is read from the CMS (cached).

Examples:
  lmscache progress web-basics
  lmscache progress web-basics --quiz html-quiz,css-quiz`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).CourseCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			course := args[0]

			slugs := cleanSlugs(quizzes)
			if len(slugs) == 0 {
				items, err := app.Content.Quizzes(cmd.Context(), course)
				if err != nil {
					return err
				}
				rememberQuizzes(app, course, items)
				for _, item := range items {
					slugs = append(slugs, item.Slug)
				}
			}

			cp := progress.NewCourseProgress(app.Bus, app.Validator, slugs)
			defer cp.Close()
			summary := cp.Recompute(cmd.Context())

			data := map[string]any{
				"course":    course,
				"quizzes":   summary.Total,
				"attempted": summary.Attempted,
				"passed":    summary.Passed,
				"perfect":   summary.Perfect,
				"percent":   summary.Percent,
			}
			if userID, err := app.Auth.CurrentUser(cmd.Context()); err == nil {
				done := app.Records.Items(records.Key{Kind: records.KindCompletedItems, UserID: userID, Scope: course})
				data["completed_items"] = len(done)
			}

			locale := app.Output.Locale()
			return app.OK(data,
				output.WithSummary(fmt.Sprintf("%d/%d quizzes passed (%s)",
					summary.Passed, summary.Total, locale.FormatPercent(summary.Percent/100))),
			)
		},
	}

	cmd.Flags().StringSliceVar(&quizzes, "quiz", nil, "Quiz slugs to include (comma-separated)")

	return cmd
}

func cleanSlugs(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
