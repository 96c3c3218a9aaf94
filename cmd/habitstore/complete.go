package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCompleteCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "complete <tracker>",
		Short: "Mark a tracker done on a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDate(date, a.svc.Today())
			if err != nil {
				return err
			}
			t, err := resolveTracker(a.svc, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.AddCompletionRecord(t.ID, day); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"tracker_id": t.ID,
					"date":       day,
					"completed":  true,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed %q on %s\n", t.Title, day)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to complete (YYYY-MM-DD, default today)")
	return cmd
}

func newUncompleteCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "uncomplete <tracker>",
		Short: "Remove a completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			day, err := parseDate(date, a.svc.Today())
			if err != nil {
				return err
			}
			t, err := resolveTracker(a.svc, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.RemoveCompletionRecord(t.ID, day); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"tracker_id": t.ID,
					"date":       day,
					"completed":  false,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed completion of %q on %s\n", t.Title, day)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to clear (YYYY-MM-DD, default today)")
	return cmd
}
