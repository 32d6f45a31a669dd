package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/config"
	"github.com/learnhub/lmscache/internal/output"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect configuration.

Values are layered: defaults, /etc/lmscache/config.json, the global config
dir, .lmscache/config.json in the repo and working directory, LMSCACHE_*
environment variables, then flags.`,
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			cfg := app.Config

			keys := []struct {
				key   string
				value string
			}{
				{"cms_url", cfg.CMSURL},
				{"state_dir", cfg.StateDir},
				{"database_path", cfg.Database()},
				{"reset_sentinel", cfg.Sentinel()},
				{"format", cfg.Format},
				{"coalesce", fmt.Sprintf("%t", cfg.Coalesce)},
				{"default_ttl", cfg.DefaultTTL.String()},
				{"modules_ttl", cfg.ModulesTTL.String()},
				{"quizzes_ttl", cfg.QuizzesTTL.String()},
				{"janitor_interval", cfg.JanitorInterval.String()},
			}

			configData := make(map[string]any, len(keys))
			for _, k := range keys {
				source := cfg.Sources[k.key]
				if source == "" {
					source = string(config.SourceDefault)
				}
				configData[k.key] = map[string]string{
					"value":  k.value,
					"source": source,
				}
			}

			return app.OK(configData,
				output.WithSummary("Effective configuration"),
				output.WithMeta("global_config_dir", config.GlobalConfigDir()),
			)
		},
	}
}
