package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/habitstore/internal/snapshot"
)

const (
	snapshotPrefix = "habits-"
	snapshotSuffix = ".db"
)

// SnapshotStore defines the store operation needed by the snapshot worker.
type SnapshotStore interface {
	Snapshot(path string) error
}

// SnapshotCoordinator writes periodic database backups into a directory and
// keeps the newest retain of them. Files are named by ULID so lexical order
// is creation order. Each new file is also handed to the uploader.
type SnapshotCoordinator struct {
	store    SnapshotStore
	uploader snapshot.Uploader
	dir      string
	retain   int
	interval time.Duration
	logger   *slog.Logger
}

// NewSnapshotCoordinator creates a coordinator. A retain of zero keeps every file.
// The uploader parameter is optional; if nil, snapshots stay local.
func NewSnapshotCoordinator(
	store SnapshotStore,
	uploader snapshot.Uploader,
	dir string,
	retain int,
	interval time.Duration,
	logger *slog.Logger,
) *SnapshotCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if uploader == nil {
		uploader = snapshot.NoopUploader{}
	}
	return &SnapshotCoordinator{
		store:    store,
		uploader: uploader,
		dir:      dir,
		retain:   retain,
		interval: interval,
		logger:   logger,
	}
}

// Run starts the coordinator loop. Generates a snapshot immediately on start,
// then on each interval. Respects context cancellation for graceful shutdown.
func (c *SnapshotCoordinator) Run(ctx context.Context) {
	c.logger.Info("worker started",
		"component", "worker",
		"worker", "snapshot",
		"interval", c.interval.String(),
		"dir", c.dir,
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.generate(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.generate(ctx)
		}
	}
}

func (c *SnapshotCoordinator) generate(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	path, err := c.SnapshotNow(ctx)
	if err != nil {
		c.logger.Warn("snapshot generation failed",
			"component", "worker",
			"worker", "snapshot",
			"action", "snapshot_failed",
			"error", err,
		)
		return
	}
	c.logger.Info("snapshot generated",
		"component", "worker",
		"worker", "snapshot",
		"action", "snapshot_complete",
		"path", path,
	)
}

// SnapshotNow writes one backup, uploads it and prunes old local copies.
// It returns the new file's path. Upload failures are logged, not returned:
// the local snapshot remains valid.
func (c *SnapshotCoordinator) SnapshotNow(ctx context.Context) (string, error) {
	name := snapshotPrefix + ulid.Make().String() + snapshotSuffix
	path := filepath.Join(c.dir, name)
	if err := c.store.Snapshot(path); err != nil {
		return "", fmt.Errorf("snapshot: %w", err)
	}
	if err := c.uploader.Upload(ctx, name, path); err != nil {
		c.logger.Warn("snapshot upload failed",
			"component", "worker",
			"worker", "snapshot",
			"action", "snapshot_upload_failed",
			"path", path,
			"error", err,
		)
	}
	if err := c.prune(); err != nil {
		c.logger.Warn("snapshot pruning failed",
			"component", "worker",
			"worker", "snapshot",
			"action", "prune_failed",
			"error", err,
		)
	}
	return path, nil
}

// List returns the snapshot files in dir, oldest first.
func (c *SnapshotCoordinator) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		if _, err := ulid.ParseStrict(id); err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(c.dir, n)
	}
	return out, nil
}

func (c *SnapshotCoordinator) prune() error {
	if c.retain <= 0 {
		return nil
	}
	files, err := c.List()
	if err != nil {
		return err
	}
	for len(files) > c.retain {
		if err := os.Remove(files[0]); err != nil && !os.IsNotExist(err) {
			return err
		}
		files = files[1:]
	}
	return nil
}
