package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/habitstore/internal/livequery"
	"github.com/hyperengineering/habitstore/internal/snapshot"
	"github.com/hyperengineering/habitstore/internal/types"
	"github.com/hyperengineering/habitstore/internal/worker"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		f    intentFlags
		poll time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a live query and run the background workers",
		Long: "Print the tracker list for a day, then print each batch of edits as it changes. " +
			"While running, live queries roll over at midnight, statistics are reconciled and " +
			"snapshots are taken on the configured intervals.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			intent, err := f.intent(a)
			if err != nil {
				return err
			}
			ctrl, err := a.svc.Watch(intent)
			if err != nil {
				return err
			}
			defer a.svc.Unwatch(ctrl)

			out := &lockedWriter{w: cmd.OutOrStdout()}
			if err := out.initial(opts.jsonOutput, ctrl.Snapshot()); err != nil {
				return err
			}
			cancelBatches := ctrl.Subscribe(func(b livequery.Batch) {
				out.batch(opts.jsonOutput, b)
			})
			defer cancelBatches()
			cancelStats := a.svc.SubscribeStatistics(func(rows []types.Statistic) {
				out.statistics(opts.jsonOutput, rows)
			})
			defer cancelStats()

			var wg sync.WaitGroup
			wcfg := a.cfg.Worker

			scheduler := worker.NewSchedulerService(time.Local, a.logger)
			roller := worker.NewRolloverCoordinator(a.svc, nil, a.logger)
			if _, err := scheduler.Schedule("rollover", wcfg.RolloverSchedule, func() { roller.Tick() }); err != nil {
				return err
			}
			if poll > 0 {
				p := &externalChangePoller{svc: a.svc, logger: a.logger}
				if err := p.prime(); err != nil {
					return err
				}
				if _, err := scheduler.ScheduleInterval("external-changes", poll, p.poll); err != nil {
					return err
				}
			}
			startWorker(ctx, &wg, "scheduler", scheduler.Run)

			if d := time.Duration(wcfg.ReconcileInterval); d > 0 {
				startWorker(ctx, &wg, "statistics-reconciler", worker.NewReconcileWorker(a.svc, d, a.logger).Run)
			}
			if d := time.Duration(wcfg.SnapshotInterval); d > 0 {
				var remote snapshot.Remote = snapshot.NoopUploader{}
				if r, err := snapshot.NewRemote(a.cfg.SnapshotStorage); err != nil {
					a.logger.Warn("snapshot upload disabled", "component", "cli", "error", err)
				} else {
					remote = r
				}
				c := worker.NewSnapshotCoordinator(a.store, remote, wcfg.SnapshotDir, wcfg.SnapshotRetain, d, a.logger)
				startWorker(ctx, &wg, "snapshot", c.Run)
			}

			<-ctx.Done()
			wg.Wait()
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().DurationVar(&poll, "poll", 2*time.Second,
		"How often to check the change log for writes from other processes (0 disables)")
	return cmd
}

// externalChangePoller recomputes live queries when another process commits.
// In-process writes notify directly; the change log sequence catches the rest.
type externalChangePoller struct {
	svc interface {
		History(afterSeq int64, limit int) ([]types.ChangeLogEntry, error)
		Watched() []*livequery.Controller
	}
	logger *slog.Logger

	mu   sync.Mutex
	last int64
}

func (p *externalChangePoller) prime() error {
	for {
		entries, err := p.svc.History(p.last, 500)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		p.last = entries[len(entries)-1].Sequence
	}
}

func (p *externalChangePoller) poll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := p.last
	if err := p.prime(); err != nil {
		p.logger.Error("change log read failed",
			"component", "cli",
			"action", "poll_changes",
			"after_seq", p.last,
			"error", err,
		)
		return
	}
	if p.last == before {
		return
	}
	for _, c := range p.svc.Watched() {
		if _, err := c.Recompute(); err != nil {
			p.logger.Error("live query recompute failed",
				"component", "cli",
				"action", "recompute",
				"date", c.Intent().Date.String(),
				"error", err,
			)
		}
	}
}

// lockedWriter serialises output from the subscriber callbacks, which run on
// whichever goroutine committed the change.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) initial(asJSON bool, snap livequery.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if asJSON {
		return printJSON(l.w, map[string]any{"snapshot": snap})
	}
	return printSnapshot(l.w, snap)
}

func (l *lockedWriter) batch(asJSON bool, b livequery.Batch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if asJSON {
		_ = printJSON(l.w, map[string]any{"batch": b})
		return
	}
	fmt.Fprintf(l.w, "\n-- batch %d (%d edits)\n", b.Seq, len(b.Edits))
	for _, e := range b.Edits {
		fmt.Fprintf(l.w, "   %s\n", e)
	}
	_ = printSnapshot(l.w, b.Snapshot)
}

func (l *lockedWriter) statistics(asJSON bool, rows []types.Statistic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if asJSON {
		_ = printJSON(l.w, map[string]any{"statistics": rows})
		return
	}
	fmt.Fprint(l.w, "-- statistics:")
	for _, s := range rows {
		fmt.Fprintf(l.w, " %s=%d", s.ID, s.Value)
	}
	fmt.Fprintln(l.w)
}
