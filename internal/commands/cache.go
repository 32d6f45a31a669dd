package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/output"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the response cache",
		Long: `Inspect and manage the response cache.

Cached responses live in memory for the life of the process; call counters
are persisted in the state directory and survive restarts.`,
	}

	cmd.AddCommand(
		newCacheStatsCmd(),
		newCacheClearCmd(),
		newCacheCleanupCmd(),
	)

	return cmd
}

func newCacheStatsCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show call counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if reset {
				app.Cache.ResetStats()
			}
			stats := app.Cache.GetStats()
			locale := app.Output.Locale()

			summary := fmt.Sprintf("%s calls, %s hit rate",
				locale.FormatNumber(float64(stats.TotalCalls)), locale.FormatPercent(stats.HitRate()))
			if reset {
				summary = "Counters reset"
			}

			circuit, err := app.Breaker.State()
			if err != nil {
				app.Logger.Debug("reading CMS circuit state", "error", err)
			}

			return app.OK(map[string]any{
				"total_calls":  stats.TotalCalls,
				"cache_hits":   stats.CacheHits,
				"cache_misses": stats.CacheMisses,
				"hit_rate":     stats.HitRate(),
				"entries":      app.Cache.Len(),
				"cms_circuit":  circuit,
			}, output.WithSummary(summary))
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Zero the counters first")

	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached response",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			removed := app.Cache.Len()
			app.Cache.Clear()

			return app.OK(map[string]any{"removed": removed},
				output.WithSummary(fmt.Sprintf("Cleared %d cached responses", removed)))
		},
	}
}

func newCacheCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Evict expired responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			removed := app.Cache.Cleanup()

			return app.OK(map[string]any{"removed": removed, "entries": app.Cache.Len()},
				output.WithSummary(fmt.Sprintf("Evicted %d expired responses", removed)))
		},
	}
}
