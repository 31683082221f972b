package leaderboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/monitoring"
)

// Reconciler periodically recomputes the ranking cache from durable results,
// overwriting whatever incremental updates left behind. This is the healing
// authority for missed or duplicated cache writes; between runs the cache is
// eventually consistent.
type Reconciler struct {
	cache    Cache
	source   ResultSource
	interval time.Duration
	log      *zap.Logger
}

func NewReconciler(cache Cache, source ResultSource, interval time.Duration, log *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{cache: cache, source: source, interval: interval, log: log}
}

// Run reconciles on a fixed interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("leaderboard reconciler started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("leaderboard reconciler stopped")
			return
		case <-ticker.C:
			if err := r.ReconcileOnce(ctx); err != nil {
				r.log.Error("leaderboard reconciliation failed", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce rebuilds all rankings from result rows.
func (r *Reconciler) ReconcileOnce(ctx context.Context) error {
	bests, err := r.source.ListBestScores(ctx)
	if err != nil {
		monitoring.ReconcileCounter.WithLabelValues("error").Inc()
		return err
	}
	if err := r.cache.Rebuild(ctx, bests); err != nil {
		monitoring.ReconcileCounter.WithLabelValues("error").Inc()
		return err
	}
	monitoring.ReconcileCounter.WithLabelValues("ok").Inc()
	r.log.Debug("leaderboard reconciled", zap.Int("bestScores", len(bests)))
	return nil
}
