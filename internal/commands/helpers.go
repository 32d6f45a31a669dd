// Package commands implements the CLI commands.
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/appctx"
	"github.com/learnhub/lmscache/internal/output"
	"github.com/learnhub/lmscache/internal/progress"
	"github.com/learnhub/lmscache/internal/reconcile"
	"github.com/learnhub/lmscache/internal/records"
)

// notSyncedWarning is shown when a write reached local storage only.
const notSyncedWarning = "Saved locally; the progress database did not accept the write"

func requireApp(cmd *cobra.Command) (*appctx.App, error) {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	return app, nil
}

// progressError maps recorder errors onto the output error model.
func progressError(err error) error {
	if errors.Is(err, progress.ErrNotSignedIn) {
		return output.ErrAuth("Not signed in")
	}
	return err
}

// splitSyncWarning turns a not-synced error into a warning. Any other error
// is returned unchanged.
func splitSyncWarning(err error) (string, error) {
	if err != nil && errors.Is(err, progress.ErrNotSynced) {
		return notSyncedWarning, nil
	}
	return "", err
}

// recordFields flattens a record into output fields. A nil record adds nothing.
func recordFields(into map[string]any, rec *records.Record) {
	if rec == nil {
		return
	}
	into["score"] = rec.Score
	if rec.Total != nil {
		into["total"] = *rec.Total
	}
	into["score_percentage"] = rec.ScorePercentage
	into["passed"] = rec.Passed
	into["completed_at"] = rec.CompletedAt
}

// resultView renders a reconciliation result for one scope.
func resultView(scope string, res reconcile.Result) map[string]any {
	view := map[string]any{
		"slug":     scope,
		"source":   string(res.Source()),
		"is_valid": res.IsValid,
	}
	recordFields(view, res.Data())
	return view
}
