// Package cli wires the cobra command tree and maps errors to exit codes.
package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/appctx"
	"github.com/learnhub/lmscache/internal/commands"
	"github.com/learnhub/lmscache/internal/config"
	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:   "lmscache",
		Short: "Cached course content and reconciled learner progress",
		Long: `lmscache reads course content through a TTL response cache and keeps a
local mirror of learner progress reconciled against the progress database.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipsSetup(cmd) {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				CMSURL:       flags.CMSURL,
				StateDir:     flags.StateDir,
				DatabasePath: flags.Database,
			})
			if err != nil {
				return output.ErrUsage(err.Error())
			}

			app := appctx.NewApp(cfg, flags)
			ctx := appctx.WithApp(cmd.Context(), app)
			cmd.SetContext(ctx)
			app.StartSession(ctx)
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter JSON output with a jq expression")

	// Context flags
	cmd.PersistentFlags().StringVar(&flags.CMSURL, "cms-url", "", "CMS base URL")
	cmd.PersistentFlags().StringVar(&flags.StateDir, "state-dir", "", "State directory for local records and counters")
	cmd.PersistentFlags().StringVar(&flags.Database, "database", "", "Progress database path")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose logging (-v info, -vv debug)")
	cmd.PersistentFlags().BoolVar(&flags.Ephemeral, "ephemeral", false, "Keep local state in memory for this run only")

	_ = cmd.MarkPersistentFlagDirname("state-dir")
	_ = cmd.MarkPersistentFlagFilename("database", "db", "sqlite")

	return cmd
}

// skipsSetup reports whether cmd runs without config or app.
func skipsSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "help", "version", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}
	return false
}

// AddCommands registers every subcommand on root.
func AddCommands(root *cobra.Command) {
	root.AddCommand(
		commands.NewCoursesCmd(),
		commands.NewLessonsCmd(),
		commands.NewModulesCmd(),
		commands.NewQuizzesCmd(),
		commands.NewQuizCmd(),
		commands.NewCompleteCmd(),
		commands.NewViewCmd(),
		commands.NewProgressCmd(),
		commands.NewCacheCmd(),
		commands.NewResetCmd(),
		commands.NewWatchCmd(),
		commands.NewAdminCmd(),
		commands.NewAuthCmd(),
		commands.NewConfigCmd(),
		commands.NewCommandsCmd(),
		commands.NewCompletionCmd(),
		commands.NewVersionCmd(),
	)
}

// Execute runs the root command.
func Execute() {
	cmd := NewRootCmd()
	AddCommands(cmd)

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteC()

	var app *appctx.App
	if executedCmd != nil && executedCmd.Context() != nil {
		app = appctx.FromContext(executedCmd.Context())
	}

	code := output.ExitOK
	if err != nil {
		err = transformCobraError(err)
		code = output.AsError(err).ExitCode()

		if app != nil {
			_ = app.Err(err)
		} else {
			// Setup failed before the app existed
			_ = output.New(output.Options{
				Format: fallbackFormat(cmd),
				Writer: os.Stdout,
			}).Err(err)
		}
	}

	if app != nil {
		_ = app.Close()
	}
	if code != output.ExitOK {
		os.Exit(code)
	}
}

// fallbackFormat picks an output format from raw flags.
func fallbackFormat(cmd *cobra.Command) output.Format {
	pf := cmd.PersistentFlags()
	quiet, _ := pf.GetBool("quiet")
	styled, _ := pf.GetBool("styled")
	jsonFlag, _ := pf.GetBool("json")

	switch {
	case quiet:
		return output.FormatQuiet
	case jsonFlag:
		return output.FormatJSON
	case styled:
		return output.FormatStyled
	}
	return output.FormatAuto
}

var (
	shorthandRe    = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)
	requiredFlagRe = regexp.MustCompile(`required flag\(s\) "([\w-]+)" not set`)
)

// transformCobraError turns cobra's parse errors into usage errors.
func transformCobraError(err error) error {
	msg := err.Error()

	if strings.HasPrefix(msg, "flag needs an argument: ") {
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	}

	if strings.HasPrefix(msg, "unknown flag: ") {
		return output.ErrUsage("Unknown option: " + strings.TrimPrefix(msg, "unknown flag: "))
	}

	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		if matches := shorthandRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrUsageHint(msg, "Run: lmscache commands")
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrUsage(msg)
	}

	if strings.Contains(msg, "arg(s), received") {
		return output.ErrUsage(msg)
	}

	if strings.HasPrefix(msg, "required flag(s) ") {
		if matches := requiredFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrUsage("--" + matches[1] + " is required")
		}
		return output.ErrUsage(msg)
	}

	return err
}
