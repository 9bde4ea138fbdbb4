package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/benvon/dayplan/internal/database"
	"github.com/benvon/dayplan/internal/materializer"
	"github.com/benvon/dayplan/internal/models"
	"github.com/spf13/cobra"
)

// NewMaterializeCmd creates the materialize command
func NewMaterializeCmd() *cobra.Command {
	var user, workspace, start, end, visibility string

	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Materialize plans for a date range",
		Long:  "Ensure a plan and task instances exist for every recurring template occurrence between --start and --end (inclusive)",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, workspaceID, err := parseOwner(user, workspace)
			if err != nil {
				return err
			}
			startDate, err := models.ParseDate(start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			endDate := startDate
			if end != "" {
				if endDate, err = models.ParseDate(end); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
			}

			cfg, db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			vis := cfg.Visibility()
			if visibility != "" {
				if vis, err = models.ParseVisibility(visibility); err != nil {
					return fmt.Errorf("--visibility: %w", err)
				}
			}

			m := materializer.New(
				database.NewTemplateRepository(db),
				database.NewPlanRepository(db),
				database.NewInstanceRepository(db),
				materializer.WithLocation(cfg.Location()),
				materializer.WithMaxRangeDays(cfg.MaxRangeDays),
			)
			window, err := materializer.NewDateRange(startDate, endDate, m.MaxRangeDays())
			if err != nil {
				return err
			}

			result, err := m.Materialize(context.Background(), materializer.Request{
				UserID:      userID,
				WorkspaceID: workspaceID,
				Range:       window,
				Visibility:  vis,
			})
			if err != nil {
				return fmt.Errorf("failed to materialize: %w", err)
			}

			printResult(cmd.OutOrStdout(), window, result)
			if len(result.Failures) > 0 {
				return fmt.Errorf("%d units failed", len(result.Failures))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace ID (required)")
	cmd.Flags().StringVar(&start, "start", "", "First date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&end, "end", "", "Last date, YYYY-MM-DD (defaults to --start)")
	cmd.Flags().StringVar(&visibility, "visibility", "", "Visibility for created plans: private or workspace")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("start")

	return cmd
}

func printResult(out io.Writer, window materializer.DateRange, result *materializer.Result) {
	fmt.Fprintf(out, "Materialized %s: %d created, %d existing, %d failed\n",
		window, result.Created, result.Existing, len(result.Failures))
	for _, plan := range result.Plans {
		if plan.Placeholder {
			continue
		}
		fmt.Fprintf(out, "  %s  %d tasks\n", plan.Date, len(plan.Tasks))
		for _, task := range plan.Tasks {
			fmt.Fprintf(out, "    %d. %s [%s]\n", task.Position, task.Title, task.Status)
		}
	}
	for _, f := range result.Failures {
		fmt.Fprintf(out, "  FAILED %s template %s: %s\n", f.Date, f.TemplateID, f.Message)
	}
}
