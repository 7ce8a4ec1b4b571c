package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/charityng-backend/internal/logger"
)

// Reconciler is what the worker needs from the coordinator.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (*ReconcileReport, error)
}

// Worker runs periodic reconciliation sweeps
type Worker struct {
	Reconciler Reconciler
	Interval   time.Duration
	// Done, when set, receives the report of every finished sweep.
	Done chan<- *ReconcileReport
}

// Constructor
func NewWorker(r Reconciler, interval time.Duration) *Worker {
	return &Worker{
		Reconciler: r,
		Interval:   interval,
	}
}

// Start sweeps once right away and then on every tick until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep and logs the outcome.
func (w *Worker) RunOnce(ctx context.Context) *ReconcileReport {
	started := time.Now()
	report, err := w.Reconciler.ReconcileAll(ctx)
	log := logger.FromContext(ctx).WithField("duration", time.Since(started).String())
	if err != nil {
		log.WithError(err).Error("reconciliation sweep failed")
	} else {
		log.WithFields(logrus.Fields{
			"campaigns": report.Campaigns,
			"added":     report.Added,
			"removed":   report.Removed,
		}).Info("reconciliation sweep finished")
	}

	if w.Done != nil && report != nil {
		select {
		case w.Done <- report:
		case <-ctx.Done():
		}
	}
	return report
}
