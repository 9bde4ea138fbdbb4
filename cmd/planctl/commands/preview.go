package commands

import (
	"fmt"

	"github.com/benvon/dayplan/internal/models"
	"github.com/benvon/dayplan/internal/recurrence"
	"github.com/spf13/cobra"
)

const maxPreviewDays = 366

// NewPreviewCmd creates the preview command. It evaluates a rule without
// touching the database.
func NewPreviewCmd() *cobra.Command {
	var rule, startDate, until, from, to string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the dates a recurrence rule produces",
		Example: `  planctl preview --rule monthly --start-date 2024-01-03 --from 2024-01-01 --to 2024-06-30
  planctl preview --rule biweekly --start-date 2024-01-01 --until 2024-03-01 --from 2024-01-01 --to 2024-12-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := models.RecurrenceRule(rule)
			if !r.IsKnown() {
				return fmt.Errorf("unknown rule %q", rule)
			}
			anchor, err := models.ParseDate(startDate)
			if err != nil {
				return fmt.Errorf("--start-date: %w", err)
			}
			var repeatUntil models.Date
			if until != "" {
				if repeatUntil, err = models.ParseDate(until); err != nil {
					return fmt.Errorf("--until: %w", err)
				}
			}
			fromDate := anchor
			if from != "" {
				if fromDate, err = models.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}
			toDate := fromDate.AddDays(30)
			if to != "" {
				if toDate, err = models.ParseDate(to); err != nil {
					return fmt.Errorf("--to: %w", err)
				}
			}
			if toDate.Before(fromDate) {
				return fmt.Errorf("--to must not be before --from")
			}
			if days := models.DaysBetween(fromDate, toDate) + 1; days > maxPreviewDays {
				return fmt.Errorf("preview window of %d days exceeds %d", days, maxPreviewDays)
			}

			out := cmd.OutOrStdout()
			dates := recurrence.Occurrences(r, anchor, repeatUntil, fromDate, toDate)
			if len(dates) == 0 {
				fmt.Fprintln(out, "No occurrences")
				return nil
			}
			for _, d := range dates {
				fmt.Fprintf(out, "%s  %s\n", d, d.Weekday())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rule, "rule", "", "Recurrence rule (required)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "Anchor date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&until, "until", "", "Inclusive repeat-until date")
	cmd.Flags().StringVar(&from, "from", "", "First date to evaluate (defaults to --start-date)")
	cmd.Flags().StringVar(&to, "to", "", "Last date to evaluate (defaults to 30 days after --from)")
	_ = cmd.MarkFlagRequired("rule")
	_ = cmd.MarkFlagRequired("start-date")

	return cmd
}
