// workers/reconcile_worker.go
package workers

import (
	"context"
	"fmt"
	"time"

	"go-and-tell/services"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Reconciler rebuilds summaries from the ledger.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (services.ReconcileReport, error)
}

// ReconcileWorker periodically checks every summary row against the ledger
// and repairs drift. Runs never overlap.
type ReconcileWorker struct {
	points   Reconciler
	interval time.Duration
	log      *zap.Logger
	sched    gocron.Scheduler
}

func NewReconcileWorker(points Reconciler, interval time.Duration, logger *zap.Logger) *ReconcileWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileWorker{points: points, interval: interval, log: logger.Named("reconcile_worker")}
}

// Start schedules the job. ctx bounds every run; Stop ends the schedule.
func (w *ReconcileWorker) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() { w.RunOnce(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reconcile-points"),
	); err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule reconcile job: %w", err)
	}

	w.sched = sched
	sched.Start()
	w.log.Info("reconcile worker started", zap.Duration("interval", w.interval))
	return nil
}

// RunOnce performs a single reconcile pass.
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	report, err := w.points.ReconcileAll(ctx)
	if err != nil {
		w.log.Error("reconcile pass failed", zap.Error(err))
		return
	}
	w.log.Info("reconcile pass done",
		zap.Int("checked", report.Checked),
		zap.Int("repaired", report.Repaired),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(started)))
}

func (w *ReconcileWorker) Stop() error {
	if w.sched == nil {
		return nil
	}
	err := w.sched.Shutdown()
	w.sched = nil
	w.log.Info("reconcile worker stopped")
	return err
}
