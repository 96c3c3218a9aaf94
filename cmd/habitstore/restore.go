package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hyperengineering/habitstore/internal/config"
	"github.com/hyperengineering/habitstore/internal/snapshot"
	"github.com/hyperengineering/habitstore/internal/store"
	"github.com/hyperengineering/habitstore/internal/worker"
	"github.com/spf13/cobra"
)

func newSnapshotsCmd(opts *rootOptions) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List snapshots in worker.snapshot_dir and, with --remote, in snapshot storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			local, err := worker.NewSnapshotCoordinator(nil, nil, cfg.Worker.SnapshotDir, 0, 0, nil).List()
			if err != nil {
				return fmt.Errorf("list local snapshots: %w", err)
			}
			for i, p := range local {
				local[i] = filepath.Base(p)
			}

			var uploaded []string
			if remote {
				r, err := snapshot.NewRemote(cfg.SnapshotStorage)
				if err != nil {
					return err
				}
				if uploaded, err = r.List(cmd.Context()); err != nil {
					return err
				}
			}

			if opts.jsonOutput {
				out := map[string]any{"dir": cfg.Worker.SnapshotDir, "local": local}
				if remote {
					out["remote"] = uploaded
				}
				return printJSON(cmd.OutOrStdout(), out)
			}
			w := newTabWriter(cmd.OutOrStdout())
			fmt.Fprintln(w, "LOCATION\tNAME")
			for _, n := range local {
				fmt.Fprintf(w, "local\t%s\n", n)
			}
			for _, n := range uploaded {
				fmt.Fprintf(w, "remote\t%s\n", n)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Also list snapshots in snapshot storage")
	return cmd
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "restore <snapshot>",
		Short: "Replace the database with a snapshot",
		Long: "Replace the database with a snapshot. The argument is a file path, a snapshot name in " +
			"worker.snapshot_dir, or a name in snapshot storage. The snapshot is opened and checked " +
			"before it replaces anything. Stop any running watch first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.InMemory {
				return errors.New("restore needs an on-disk database")
			}
			logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
			target := cfg.Database.Path

			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s exists, pass --force to replace it", target)
			}

			src, cleanup, err := locateSnapshot(cmd, cfg, args[0])
			if err != nil {
				return err
			}
			defer cleanup()

			if err := checkSnapshot(src, logger); err != nil {
				return fmt.Errorf("snapshot %s is not usable: %w", args[0], err)
			}
			if err := replaceDatabase(src, target); err != nil {
				return err
			}

			logger.Info("database restored",
				"component", "cli",
				"action", "restore",
				"source", src,
				"path", target,
			)
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), map[string]any{"source": src, "path": target})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n", target, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing database")
	return cmd
}

// locateSnapshot resolves ref to a readable local file. Remote snapshots are
// downloaded into a temporary file that cleanup removes.
func locateSnapshot(cmd *cobra.Command, cfg *config.Config, ref string) (path string, cleanup func(), err error) {
	noop := func() {}
	if fi, err := os.Stat(ref); err == nil && !fi.IsDir() {
		return ref, noop, nil
	}
	local := filepath.Join(cfg.Worker.SnapshotDir, filepath.Base(ref))
	if fi, err := os.Stat(local); err == nil && !fi.IsDir() {
		return local, noop, nil
	}

	remote, err := snapshot.NewRemote(cfg.SnapshotStorage)
	if err != nil {
		return "", noop, err
	}
	tmp, err := os.CreateTemp("", "habitstore-restore-*.db")
	if err != nil {
		return "", noop, err
	}
	tmp.Close()
	cleanup = func() { os.Remove(tmp.Name()) }
	if err := remote.Download(cmd.Context(), filepath.Base(ref), tmp.Name()); err != nil {
		cleanup()
		if errors.Is(err, snapshot.ErrNotConfigured) {
			return "", noop, fmt.Errorf("snapshot %q not found locally and %w", ref, err)
		}
		return "", noop, err
	}
	return tmp.Name(), cleanup, nil
}

// checkSnapshot opens path as a store and reads the statistics, which fails
// for anything that is not a habit database.
func checkSnapshot(path string, logger *slog.Logger) error {
	st, err := store.Open(store.Options{Path: path, Logger: logger})
	if err != nil {
		return err
	}
	err = st.WithTransaction(func(tx store.Tx) error {
		_, err := tx.Statistics()
		return err
	})
	if cerr := st.Close(); err == nil {
		err = cerr
	}
	return err
}

// replaceDatabase copies src next to target and renames it into place. Stale
// WAL files of the old database are removed first.
func replaceDatabase(src, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp := target + ".restore"
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("copy snapshot: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(target + suffix); err != nil && !os.IsNotExist(err) {
			os.Remove(tmp)
			return err
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace database: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
