package commands

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionStatusCmd(t *testing.T) {
	app, buf, _ := setupTestApp(t)
	require.NoError(t, executeCommand(NewCoursesCmd(), app))
	require.NoError(t, executeCommand(NewQuizzesCmd(), app, "web-basics"))
	buf.Reset()

	require.NoError(t, executeCommand(NewCompletionCmd(), app, "status"))

	data := dataMap(t, lastEnvelope(t, buf))
	assert.Equal(t, 1.0, data["courses"])
	assert.Equal(t, 2.0, data["quizzes"])
	assert.Equal(t, false, data["stale"])
}

func TestRunCompletion(t *testing.T) {
	root := &cobra.Command{Use: "lmscache"}
	root.AddCommand(NewLessonsCmd())

	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		var out bytes.Buffer
		require.NoError(t, runCompletion(root, &out, shell), shell)
		assert.Contains(t, out.String(), "lmscache", shell)
	}
	assert.Error(t, runCompletion(root, &bytes.Buffer{}, "tcsh"))
}
