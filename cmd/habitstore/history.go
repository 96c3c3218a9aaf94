package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		after int64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the change log of committed mutations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.svc.History(after, limit)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				var next int64 = after
				if len(entries) > 0 {
					next = entries[len(entries)-1].Sequence
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"entries": entries,
					"next":    next,
				})
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
				return nil
			}
			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "SEQ\tTIME\tTABLE\tOPERATION\tENTITY")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					e.Sequence,
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					e.TableName,
					e.Operation,
					e.EntityID,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "Only entries with a greater sequence")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	return cmd
}
