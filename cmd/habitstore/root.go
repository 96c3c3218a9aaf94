package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hyperengineering/habitstore/internal/config"
	"github.com/hyperengineering/habitstore/internal/habits"
	"github.com/hyperengineering/habitstore/internal/store"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	jsonOutput bool
	configPath string
	dbPath     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "habitstore",
		Short:         "Habitstore - local habit tracker data store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false,
		"Output in JSON format")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file path (overrides HABITS_CONFIG_PATH)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "",
		"Database path (overrides config and HABITS_DB_PATH)")

	cmd.AddCommand(
		newCategoryCmd(opts),
		newTrackerCmd(opts),
		newCompleteCmd(opts),
		newUncompleteCmd(opts),
		newListCmd(opts),
		newStatsCmd(opts),
		newHistoryCmd(opts),
		newBackupCmd(opts),
		newSnapshotsCmd(opts),
		newRestoreCmd(opts),
		newWatchCmd(opts),
	)
	return cmd
}

// app is an opened store plus the service on top of it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  store.Handle
	svc    *habits.Service
}

// loadConfig resolves configuration with the --config and --db overrides applied.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
		cfg.Database.InMemory = false
	}
	return cfg, nil
}

// openApp loads config, builds the logger and opens the store. When degrade is
// set an unloadable store is replaced by the in-memory no-op store.
func (o *rootOptions) openApp(cmd *cobra.Command, degrade bool) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	storeOpts := store.Options{
		Path:     cfg.Database.Path,
		InMemory: cfg.Database.InMemory,
		Logger:   logger,
	}
	var h store.Handle
	if degrade {
		h = store.OpenOrDegrade(storeOpts)
	} else {
		st, err := store.Open(storeOpts)
		if err != nil {
			return nil, err
		}
		h = st
	}

	svc := habits.New(h,
		habits.WithLogger(logger),
		habits.WithPinnedTitle(cfg.Query.PinnedSection),
	)
	return &app{cfg: cfg, logger: logger, store: h, svc: svc}, nil
}

func (a *app) Close() {
	a.svc.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", "error", err)
	}
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
