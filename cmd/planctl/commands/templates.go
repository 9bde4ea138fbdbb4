package commands

import (
	"context"
	"fmt"

	"github.com/benvon/dayplan/internal/database"
	"github.com/spf13/cobra"
)

// NewTemplatesCmd creates the templates command group
func NewTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect recurring task templates",
	}
	cmd.AddCommand(newTemplatesListCmd())
	return cmd
}

func newTemplatesListCmd() *cobra.Command {
	var user, workspace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active templates for a user in a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, workspaceID, err := parseOwner(user, workspace)
			if err != nil {
				return err
			}

			_, db, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			repo := database.NewTemplateRepository(db)
			ctx := context.Background()

			templates, err := repo.ListActive(ctx, userID, workspaceID)
			if err != nil {
				return fmt.Errorf("failed to list templates: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(templates) == 0 {
				fmt.Fprintln(out, "No active templates")
				return nil
			}

			fmt.Fprintln(out, "Active templates:")
			for _, tmpl := range templates {
				instances, err := repo.CountInstances(ctx, tmpl.ID)
				if err != nil {
					return fmt.Errorf("failed to count instances: %w", err)
				}
				fmt.Fprintf(out, "  - %s\n", tmpl.Title)
				fmt.Fprintf(out, "    ID: %s\n", tmpl.ID)
				fmt.Fprintf(out, "    Rule: %s from %s\n", tmpl.Rule, tmpl.StartDate)
				if !tmpl.RepeatUntil.IsZero() {
					fmt.Fprintf(out, "    Until: %s\n", tmpl.RepeatUntil)
				}
				if tmpl.TimeOfDay != nil {
					fmt.Fprintf(out, "    Time: %s\n", tmpl.TimeOfDay)
				}
				fmt.Fprintf(out, "    Instances: %d\n", instances)
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID (required)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace ID (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}
