package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var reconcile bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show streak and completion statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			rewritten := false
			if reconcile {
				if rewritten, err = a.svc.ReconcileStatistics(); err != nil {
					return err
				}
			}
			rows, err := a.svc.FetchStatistics()
			if err != nil {
				return err
			}
			summary, err := a.svc.Summary()
			if err != nil {
				return err
			}

			if opts.jsonOutput {
				out := map[string]any{
					"statistics":    rows,
					"perfect_dates": summary.PerfectDates,
				}
				if reconcile {
					out["reconciled"] = rewritten
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "STATISTIC\tVALUE")
			for _, s := range rows {
				fmt.Fprintf(w, "%s\t%d\n", s.ID, s.Value)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if reconcile && rewritten {
				fmt.Fprintln(cmd.OutOrStdout(), "Stored statistics were out of date and have been rewritten.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reconcile, "reconcile", false, "Recompute from history and fix stored values first")
	return cmd
}
