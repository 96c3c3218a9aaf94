package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hyperengineering/habitstore/internal/snapshot"
	"github.com/hyperengineering/habitstore/internal/worker"
	"github.com/spf13/cobra"
)

func newBackupCmd(opts *rootOptions) *cobra.Command {
	var share bool
	cmd := &cobra.Command{
		Use:   "backup [path]",
		Short: "Write a consistent copy of the database",
		Long: "Write a consistent copy of the database. With a path the copy is written there. " +
			"Without one it goes into worker.snapshot_dir, is uploaded when snapshot storage is " +
			"configured, and old copies beyond worker.snapshot_retain are pruned.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var path string
			var remote snapshot.Remote = snapshot.NoopUploader{}
			if len(args) == 1 {
				path = args[0]
				if err := a.store.Snapshot(path); err != nil {
					return err
				}
			} else {
				remote, err = snapshot.NewRemote(a.cfg.SnapshotStorage)
				if err != nil {
					return err
				}
				c := worker.NewSnapshotCoordinator(a.store, remote, a.cfg.Worker.SnapshotDir,
					a.cfg.Worker.SnapshotRetain, time.Duration(a.cfg.Worker.SnapshotInterval), a.logger)
				if path, err = c.SnapshotNow(cmd.Context()); err != nil {
					return err
				}
			}

			out := map[string]any{"path": path}
			if share {
				link, expiry, err := remote.PresignedURL(cmd.Context(), filepath.Base(path))
				if err != nil {
					return fmt.Errorf("share backup: %w", err)
				}
				out["url"] = link
				out["expires_at"] = expiry
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
			if link, ok := out["url"]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Download: %s\n", link)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&share, "share", false, "Print a pre-signed download link for the uploaded copy")
	return cmd
}
