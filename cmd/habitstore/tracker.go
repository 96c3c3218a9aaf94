package main

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/habitstore/internal/habits"
	"github.com/hyperengineering/habitstore/internal/types"
	"github.com/spf13/cobra"
)

func newTrackerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Manage habits and one-off events",
	}
	cmd.AddCommand(
		newTrackerCreateCmd(opts),
		newTrackerListCmd(opts),
		newTrackerUpdateCmd(opts),
		newTrackerPinCmd(opts),
		newTrackerDeleteCmd(opts),
	)
	return cmd
}

// ruleFlags are the mutually exclusive schedule flags.
type ruleFlags struct {
	days string
	date string
}

func (f *ruleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.days, "days", "",
		`Recurring weekdays, e.g. "mon,wed,fri" or "daily"`)
	cmd.Flags().StringVar(&f.date, "date", "",
		"One-off date (YYYY-MM-DD)")
	cmd.MarkFlagsMutuallyExclusive("days", "date")
}

func (f *ruleFlags) set() bool {
	return f.days != "" || f.date != ""
}

func (f *ruleFlags) rule() (types.CompletionRule, error) {
	switch {
	case f.date != "":
		d, err := types.ParseDay(f.date)
		if err != nil {
			return nil, err
		}
		return types.OneOff{Date: d}, nil
	case f.days == "daily":
		return types.NewRecurring(types.Monday, types.Tuesday, types.Wednesday, types.Thursday,
			types.Friday, types.Saturday, types.Sunday)
	case f.days != "":
		days, err := parseWeekdays(f.days)
		if err != nil {
			return nil, err
		}
		return types.NewRecurring(days...)
	default:
		return nil, errors.New("one of --days or --date is required")
	}
}

func newTrackerCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		category string
		color    string
		emoji    string
		pinned   bool
		rf       ruleFlags
	)
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := rf.rule()
			if err != nil {
				return err
			}
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cat, err := resolveCategory(a.svc, category)
			if err != nil {
				return err
			}
			t, err := a.svc.CreateTracker(types.NewTracker{
				Title:      args[0],
				Color:      color,
				Emoji:      emoji,
				IsPinned:   pinned,
				CategoryID: cat.ID,
				Rule:       rule,
			})
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created tracker %q (%s)\n", t.Title, t.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Category id or title (required)")
	cmd.Flags().StringVar(&color, "color", "color1", "Color name")
	cmd.Flags().StringVar(&emoji, "emoji", "✅", "Emoji")
	cmd.Flags().BoolVar(&pinned, "pinned", false, "Pin the tracker")
	rf.register(cmd)
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newTrackerListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			trackers, err := a.svc.Trackers()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"trackers": trackers,
					"total":    len(trackers),
				})
			}
			if len(trackers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No trackers found.")
				return nil
			}
			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tTITLE\tSCHEDULE\tPINNED")
			for _, t := range trackers {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%v\n", t.ID, t.Emoji, t.Title, describeRule(t.Rule), t.IsPinned)
			}
			return w.Flush()
		},
	}
}

func newTrackerUpdateCmd(opts *rootOptions) *cobra.Command {
	var (
		title    string
		category string
		color    string
		emoji    string
		rf       ruleFlags
	)
	cmd := &cobra.Command{
		Use:   "update <tracker>",
		Short: "Change a tracker's fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := resolveTracker(a.svc, args[0])
			if err != nil {
				return err
			}
			if err := applyTrackerUpdate(a.svc, &t, cmd, title, category, color, emoji, &rf); err != nil {
				return err
			}
			if err := a.svc.UpdateTracker(t); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated tracker %q\n", t.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&category, "category", "", "New category id or title")
	cmd.Flags().StringVar(&color, "color", "", "New color name")
	cmd.Flags().StringVar(&emoji, "emoji", "", "New emoji")
	rf.register(cmd)
	return cmd
}

func applyTrackerUpdate(svc *habits.Service, t *types.Tracker, cmd *cobra.Command,
	title, category, color, emoji string, rf *ruleFlags) error {
	flags := cmd.Flags()
	if flags.Changed("title") {
		t.Title = title
	}
	if flags.Changed("color") {
		t.Color = color
	}
	if flags.Changed("emoji") {
		t.Emoji = emoji
	}
	if flags.Changed("category") {
		cat, err := resolveCategory(svc, category)
		if err != nil {
			return err
		}
		t.CategoryID = cat.ID
	}
	if rf.set() {
		rule, err := rf.rule()
		if err != nil {
			return err
		}
		t.Rule = rule
	}
	return nil
}

func newTrackerPinCmd(opts *rootOptions) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "pin <tracker>",
		Short: "Pin or unpin a tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := resolveTracker(a.svc, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.SetPinned(t.ID, !off); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": t.ID, "is_pinned": !off})
			}
			verb := "Pinned"
			if off {
				verb = "Unpinned"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s tracker %q\n", verb, t.Title)
			return nil
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "Unpin instead")
	return cmd
}

func newTrackerDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tracker>",
		Short: "Delete a tracker and its completion history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			t, err := resolveTracker(a.svc, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteTracker(t.ID); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": t.ID, "deleted": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted tracker %q\n", t.Title)
			return nil
		},
	}
}
