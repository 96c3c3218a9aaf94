package worker

import (
	"context"
	"log/slog"
	"time"
)

// StatisticsReconciler defines the operation the reconciler drives.
// Implemented by habits.Service.
type StatisticsReconciler interface {
	ReconcileStatistics() (bool, error)
}

// ReconcileWorker periodically recomputes statistics from the history and
// rewrites the stored rows when they drifted.
type ReconcileWorker struct {
	stats    StatisticsReconciler
	interval time.Duration
	logger   *slog.Logger
}

// NewReconcileWorker creates a worker with the given reconciler and interval.
func NewReconcileWorker(stats StatisticsReconciler, interval time.Duration, logger *slog.Logger) *ReconcileWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileWorker{
		stats:    stats,
		interval: interval,
		logger:   logger,
	}
}

// Run reconciles immediately, then on each interval, until ctx is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) {
	w.logger.Info("worker started",
		"component", "worker",
		"worker", "statistics-reconciler",
		"interval", w.interval.String(),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped",
				"component", "worker",
				"worker", "statistics-reconciler",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

func (w *ReconcileWorker) reconcile(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	changed, err := w.stats.ReconcileStatistics()
	if err != nil {
		w.logger.Warn("statistics reconciliation failed",
			"component", "worker",
			"worker", "statistics-reconciler",
			"action", "reconcile_failed",
			"error", err,
		)
		return
	}
	if changed {
		w.logger.Info("statistics reconciled",
			"component", "worker",
			"worker", "statistics-reconciler",
			"action", "reconcile_rewrote",
		)
	}
}
