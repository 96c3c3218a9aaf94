package main

import (
	"fmt"
	"io"

	"github.com/hyperengineering/habitstore/internal/livequery"
	"github.com/hyperengineering/habitstore/internal/query"
	"github.com/spf13/cobra"
)

// intentFlags are the flags that describe a query intent.
type intentFlags struct {
	date   string
	filter string
	search string
}

func (f *intentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "Day to show (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&f.filter, "filter", "all", "all, completed or incomplete")
	cmd.Flags().StringVar(&f.search, "search", "", "Case-insensitive title search (ignores --filter)")
}

func (f *intentFlags) intent(a *app) (query.Intent, error) {
	day, err := parseDate(f.date, a.svc.Today())
	if err != nil {
		return query.Intent{}, err
	}
	filter, err := query.ParseFilter(f.filter)
	if err != nil {
		return query.Intent{}, err
	}
	return query.Intent{Date: day, Filter: filter, SearchText: f.search}, nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var f intentFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the trackers for a day, grouped into sections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			intent, err := f.intent(a)
			if err != nil {
				return err
			}
			snap, err := a.svc.Query(intent)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"date":     intent.Date,
					"sections": snap.Sections,
					"total":    snap.RowCount(),
				})
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}
	f.register(cmd)
	return cmd
}

// printSnapshot writes one table per section.
func printSnapshot(out io.Writer, snap livequery.Snapshot) error {
	if snap.RowCount() == 0 {
		fmt.Fprintln(out, "Nothing scheduled.")
		return nil
	}
	w := newTabWriter(out)
	for i, sec := range snap.Sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", sec.Title)
		for _, row := range sec.Rows {
			mark := "[ ]"
			if row.Completed {
				mark = "[x]"
			}
			fmt.Fprintf(w, "  %s\t%s %s\t%s\n", mark, row.Tracker.Emoji, row.Tracker.Title, row.Tracker.ID)
		}
	}
	return w.Flush()
}
