package completion

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/appctx"
)

// StateDirFunc returns the state directory to use for completion.
type StateDirFunc func(cmd *cobra.Command) string

// DefaultStateDirFunc returns the state directory by checking (in order):
// 1. --state-dir flag on the root command
// 2. App config from context (set by PersistentPreRunE)
// 3. LMSCACHE_STATE_DIR environment variable
// 4. Default state directory
//
// During __complete PersistentPreRunE does not run, so state_dir from config
// files is not honored; only the flag and env var are.
func DefaultStateDirFunc(cmd *cobra.Command) string {
	if root := cmd.Root(); root != nil {
		if flag := root.PersistentFlags().Lookup("state-dir"); flag != nil && flag.Changed {
			return flag.Value.String()
		}
	}
	if app := appctx.FromContext(cmd.Context()); app != nil && app.Config != nil {
		return app.Config.StateDir
	}
	if v := os.Getenv("LMSCACHE_STATE_DIR"); v != "" {
		return v
	}
	return ""
}

// Completer provides tab completion functions for the CLI.
// It reads from the file-based cache and does NOT initialize the App.
type Completer struct {
	getStateDir StateDirFunc
}

// NewCompleter creates a new Completer. If getStateDir is nil,
// DefaultStateDirFunc is used.
func NewCompleter(getStateDir StateDirFunc) *Completer {
	if getStateDir == nil {
		getStateDir = DefaultStateDirFunc
	}
	return &Completer{getStateDir: getStateDir}
}

func (c *Completer) store(cmd *cobra.Command) *Store {
	return NewStore(c.getStateDir(cmd))
}

// CourseCompletion completes the first positional argument with course slugs.
func (c *Completer) CourseCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return match(c.store(cmd).Courses(), toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

// QuizCompletion completes quiz slugs. When the command has a --course
// flag set, only that course's quizzes are offered.
func (c *Completer) QuizCompletion() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]cobra.Completion, cobra.ShellCompDirective) {
		course := ""
		if flag := cmd.Flags().Lookup("course"); flag != nil {
			course = flag.Value.String()
		}
		return match(c.store(cmd).Quizzes(course), toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

// match filters items whose slug or title contains toComplete.
func match(items []CachedItem, toComplete string) []cobra.Completion {
	needle := strings.ToLower(toComplete)
	var completions []cobra.Completion
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Slug), needle) ||
			strings.Contains(strings.ToLower(item.Title), needle) {
			if item.Title != "" {
				completions = append(completions, cobra.CompletionWithDesc(item.Slug, item.Title))
			} else {
				completions = append(completions, cobra.Completion(item.Slug))
			}
		}
	}
	return completions
}
