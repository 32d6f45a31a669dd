package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/completion"
	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/progress"
)

// NewQuizCmd creates the quiz command group.
func NewQuizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Check and submit quiz results",
		Long: `Check and submit quiz results.

Examples:
  lmscache quiz status html-quiz
  lmscache quiz submit html-quiz --score 8 --total 10`,
	}

	cmd.AddCommand(
		newQuizStatusCmd(),
		newQuizSubmitCmd(),
	)

	return cmd
}

func newQuizStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "status <quiz>",
		Short:             "Show the latest reconciled attempt",
		Long:              "Show the latest attempt for a quiz, reconciled between local records and the progress database.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).QuizCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			slug := args[0]

			perfect, res := progress.NewQuizStatus(app.Validator).Perfect(cmd.Context(), slug)
			view := resultView(slug, res)
			view["perfect"] = perfect

			summary := "No attempts for " + slug
			if rec := res.Data(); rec != nil {
				summary = fmt.Sprintf("%s: %s (%s)", slug,
					app.Output.Locale().FormatPercent(rec.ScorePercentage/100), res.Source())
			}

			opts := []output.ResponseOption{output.WithSummary(summary)}
			if res.Data() != nil && !res.IsValid {
				opts = append(opts, output.WithWarning("Local record was newer than the database; showing the database record"))
			}
			return app.OK(view, opts...)
		},
	}
}

func newQuizSubmitCmd() *cobra.Command {
	var score, total int

	cmd := &cobra.Command{
		Use:               "submit <quiz>",
		Short:             "Record a quiz result",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).QuizCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if total <= 0 {
				return output.ErrUsage("--total must be positive")
			}
			if score < 0 || score > total {
				return output.ErrUsage(fmt.Sprintf("--score must be between 0 and %d", total))
			}
			slug := args[0]

			rec, err := app.Recorder.SubmitQuiz(cmd.Context(), slug, score, total)
			warning, err := splitSyncWarning(err)
			if err != nil {
				return progressError(err)
			}

			view := map[string]any{"slug": slug, "perfect": rec.Perfect()}
			recordFields(view, rec)

			verdict := "failed"
			if rec.Passed {
				verdict = "passed"
			}
			opts := []output.ResponseOption{
				output.WithSummary(fmt.Sprintf("%s %s with %d/%d (%s)", slug, verdict, score, total,
					app.Output.Locale().FormatPercent(rec.ScorePercentage/100))),
			}
			if warning != "" {
				opts = append(opts, output.WithWarning(warning))
			}
			return app.OK(view, opts...)
		},
	}

	cmd.Flags().IntVar(&score, "score", 0, "Number of correct answers")
	cmd.Flags().IntVar(&total, "total", 0, "Number of questions")
	_ = cmd.MarkFlagRequired("score")
	_ = cmd.MarkFlagRequired("total")

	return cmd
}
