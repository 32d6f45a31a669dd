package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/learnhub/lmscache/internal/appctx"
	"github.com/learnhub/lmscache/internal/completion"
	"github.com/learnhub/lmscache/internal/content"
	"github.com/learnhub/lmscache/internal/output"
)

type listFunc func(s *content.Service, ctx context.Context, course string) ([]content.Item, error)

// NewLessonsCmd creates the lessons command.
func NewLessonsCmd() *cobra.Command {
	return newContentListCmd(content.TypeLessons, "List lessons in a course", (*content.Service).Lessons)
}

// NewModulesCmd creates the modules command.
func NewModulesCmd() *cobra.Command {
	return newContentListCmd(content.TypeModules, "List modules in a course", (*content.Service).Modules)
}

// NewQuizzesCmd creates the quizzes command.
func NewQuizzesCmd() *cobra.Command {
	return newContentListCmd(content.TypeQuizzes, "List quizzes in a course", (*content.Service).Quizzes)
}

func newContentListCmd(contentType, short string, list listFunc) *cobra.Command {
	return &cobra.Command{
		Use:               contentType + " <course>",
		Short:             short,
		Long:              short + ". Responses are cached per course for the endpoint's TTL.",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.NewCompleter(nil).CourseCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			course := args[0]

			items, err := list(app.Content, cmd.Context(), course)
			if err != nil {
				return err
			}

			if contentType == content.TypeQuizzes {
				rememberQuizzes(app, course, items)
			}

			return app.OK(items,
				output.WithSummary(fmt.Sprintf("%d %s in %s", len(items), contentType, course)),
				output.WithBreadcrumbs(output.Breadcrumb{
					Action:      "progress",
					Cmd:         "lmscache progress " + course,
					Description: "Show course progress",
				}),
			)
		},
	}
}

// NewCoursesCmd creates the courses command.
func NewCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List courses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			items, err := app.Content.Courses(cmd.Context())
			if err != nil {
				return err
			}
			rememberCourses(app, items)

			return app.OK(items, output.WithSummary(fmt.Sprintf("%d courses", len(items))))
		},
	}
}

func cachedItems(items []content.Item) []completion.CachedItem {
	out := make([]completion.CachedItem, 0, len(items))
	for _, item := range items {
		out = append(out, completion.CachedItem{Slug: item.Slug, Title: item.Title})
	}
	return out
}

func rememberCourses(app *appctx.App, items []content.Item) {
	if app.Flags.Ephemeral {
		return
	}
	if err := completion.NewStore(app.Config.StateDir).UpdateCourses(cachedItems(items)); err != nil {
		app.Logger.Debug("updating completion cache", "error", err)
	}
}

func rememberQuizzes(app *appctx.App, course string, items []content.Item) {
	if app.Flags.Ephemeral {
		return
	}
	if err := completion.NewStore(app.Config.StateDir).UpdateQuizzes(course, cachedItems(items)); err != nil {
		app.Logger.Debug("updating completion cache", "error", err)
	}
}
