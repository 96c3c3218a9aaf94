package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCategoryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage categories",
	}
	cmd.AddCommand(
		newCategoryCreateCmd(opts),
		newCategoryListCmd(opts),
		newCategoryRenameCmd(opts),
		newCategoryDeleteCmd(opts),
	)
	return cmd
}

func newCategoryCreateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.svc.CreateCategory(args[0])
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created category %q (%s)\n", c.Title, c.ID)
			return nil
		},
	}
}

func newCategoryListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cats, err := a.svc.Categories()
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"categories": cats,
					"total":      len(cats),
				})
			}
			if len(cats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No categories found.")
				return nil
			}
			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tTITLE")
			for _, c := range cats {
				fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Title)
			}
			return w.Flush()
		},
	}
}

func newCategoryRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <category> <new-title>",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := resolveCategory(a.svc, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.UpdateCategory(c.ID, args[1]); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": c.ID, "title": args[1]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed category %q to %q\n", c.Title, args[1])
			return nil
		},
	}
}

func newCategoryDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <category>",
		Short: "Delete a category and all of its trackers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := resolveCategory(a.svc, args[0])
			if err != nil {
				return err
			}
			if err := a.svc.DeleteCategory(c.ID); err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": c.ID, "deleted": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %q\n", c.Title)
			return nil
		},
	}
}
