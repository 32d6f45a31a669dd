package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/completion"
	"github.com/learnhub/lmscache/internal/output"
)

// NewCompletionCmd creates the completion command group.
func NewCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [shell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for lmscache.

To load completions:

Bash:
  $ source <(lmscache completion bash)

Zsh:
  $ lmscache completion zsh > "${fpath[1]}/_lmscache"

Fish:
  $ lmscache completion fish | source

PowerShell:
  PS> lmscache completion powershell | Out-String | Invoke-Expression

Course and quiz slugs complete from a cache that is filled whenever
"lmscache courses" or "lmscache quizzes <course>" runs.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletion(cmd.Root(), cmd.OutOrStdout(), args[0])
		},
	}

	cmd.AddCommand(newCompletionStatusCmd())

	return cmd
}

func runCompletion(rootCmd *cobra.Command, w io.Writer, shell string) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(w, true)
	case "zsh":
		return rootCmd.GenZshCompletion(w)
	case "fish":
		return rootCmd.GenFishCompletion(w, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unknown shell: %s", shell)
	}
}

func newCompletionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show completion cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			store := completion.NewStore(app.Config.StateDir)
			cache, err := store.Load()
			if err != nil {
				return output.ErrStorage("reading completion cache", err)
			}

			quizzes := 0
			for _, items := range cache.Quizzes {
				quizzes += len(items)
			}

			return app.OK(map[string]any{
				"path":               store.Path(),
				"courses":            len(cache.Courses),
				"quizzes":            quizzes,
				"courses_updated_at": cache.CoursesUpdatedAt,
				"stale":              store.IsStale(completion.DefaultMaxAge),
			}, output.WithSummary(fmt.Sprintf("%d courses, %d quizzes cached", len(cache.Courses), quizzes)))
		},
	}
}
