package application

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReconcileInterval is used when the reconciler is built without an interval.
const DefaultReconcileInterval = time.Minute

// Reconciler periodically moves tables between free, reserved and occupied as their
// reservations start and elapse.
type Reconciler struct {
	scheduler *Service
	interval  time.Duration
	logger    *slog.Logger
}

// NewReconciler builds a loop that reconciles scheduler state every interval.
func NewReconciler(scheduler *Service, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{scheduler: scheduler, interval: interval, logger: logger}
}

// Run reconciles once immediately and then on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	if _, err := r.scheduler.Reconcile(ctx); err != nil && ctx.Err() == nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "reservation reconciliation failed", slog.String("error", err.Error()))
	}
}
