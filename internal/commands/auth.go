package commands

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/auth"
	"github.com/learnhub/lmscache/internal/output"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in learner",
		Long: `Manage the signed-in learner.

Sessions are stored per CMS origin in the system keyring, or in a 0600 file
in the config directory when no keyring is available. LMSCACHE_USER
overrides the stored session.`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthWhoamiCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login <user-id>",
		Short: "Sign in as a learner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if strings.TrimSpace(args[0]) == "" {
				return output.ErrUsage("user id is required")
			}

			sess, err := app.Auth.Login(args[0], email)
			if err != nil {
				return output.ErrStorage("saving session", err)
			}

			return app.OK(map[string]any{
				"user_id": sess.UserID,
				"email":   sess.Email,
				"origin":  app.Auth.Origin(),
				"keyring": app.Auth.Store().UsingKeyring(),
			}, output.WithSummary("Signed in as "+sess.UserID))
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Learner email (informational)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.Auth.Logout(); err != nil {
				return output.ErrStorage("removing session", err)
			}

			opts := []output.ResponseOption{output.WithSummary("Signed out")}
			if os.Getenv(auth.UserEnv) != "" {
				opts = append(opts, output.WithWarning(auth.UserEnv+" is still set and overrides the session"))
			}
			return app.OK(map[string]any{"signed_in": false}, opts...)
		},
	}
}

func newAuthWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in learner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			userID, err := app.Auth.CurrentUser(cmd.Context())
			if err != nil {
				if errors.Is(err, auth.ErrNotSignedIn) {
					return output.ErrAuth("Not signed in")
				}
				return err
			}

			data := map[string]any{
				"user_id": userID,
				"origin":  app.Auth.Origin(),
				"source":  "session",
			}
			if os.Getenv(auth.UserEnv) != "" {
				data["source"] = "env"
			} else if sess, err := app.Auth.Session(); err == nil && sess.Email != "" {
				data["email"] = sess.Email
			}

			return app.OK(data, output.WithSummary("Signed in as "+userID))
		},
	}
}
