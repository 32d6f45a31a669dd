package commands

import (
	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/appctx"
	"github.com/learnhub/lmscache/internal/output"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Content",
			Commands: []CommandInfo{
				{Name: "courses", Category: "content", Description: "List courses"},
				{Name: "lessons", Category: "content", Description: "List lessons in a course"},
				{Name: "modules", Category: "content", Description: "List modules in a course"},
				{Name: "quizzes", Category: "content", Description: "List quizzes in a course"},
			},
		},
		{
			Name: "Progress",
			Commands: []CommandInfo{
				{Name: "quiz", Category: "progress", Description: "Check and submit quiz results", Actions: []string{"status", "submit"}},
				{Name: "complete", Category: "progress", Description: "Mark a lesson or challenge complete"},
				{Name: "view", Category: "progress", Description: "Record that an item was viewed"},
				{Name: "progress", Category: "progress", Description: "Summarize quiz progress for a course"},
			},
		},
		{
			Name: "Cache & Sync",
			Commands: []CommandInfo{
				{Name: "cache", Category: "sync", Description: "Inspect and manage the response cache", Actions: []string{"stats", "clear", "cleanup"}},
				{Name: "reset", Category: "sync", Description: "Purge local progress after a database reset"},
				{Name: "watch", Category: "sync", Description: "Purge local state whenever the database is reset"},
				{Name: "admin", Category: "sync", Description: "Progress database administration", Actions: []string{"reseed"}},
			},
		},
		{
			Name: "Auth & Config",
			Commands: []CommandInfo{
				{Name: "auth", Category: "auth", Description: "Manage the signed-in learner", Actions: []string{"login", "logout", "whoami"}},
				{Name: "config", Category: "auth", Description: "Inspect configuration", Actions: []string{"show"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "completion", Category: "additional", Description: "Generate shell completions", Actions: []string{"bash", "zsh", "fish", "powershell", "status"}},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
// Used by tests to verify catalog matches registered commands.
func CatalogCommandNames() []string {
	categories := commandCategories()
	total := 0
	for _, cat := range categories {
		total += len(cat.Commands)
	}
	names := make([]string, 0, total)
	for _, cat := range categories {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "commands",
		Aliases: []string{"cmds"},
		Short:   "List all available commands",
		Long:    "List all available lmscache commands organized by category.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			return app.OK(commandCategories(),
				output.WithSummary("All available lmscache commands"),
				output.WithBreadcrumbs(
					output.Breadcrumb{
						Action:      "help",
						Cmd:         "lmscache --help",
						Description: "View help",
					},
				),
			)
		},
	}
}
