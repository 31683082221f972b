package app

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-attempt-service/internal/monitoring"
)

// Sweeper periodically force-submits expired, unsubmitted attempts. It calls
// the same Submit entry point interactive requests use, so a sweep racing a
// user submit is resolved by Submit's idempotency, not by the sweeper.
//
// The sweep interval bounds how stale an expired attempt can remain before
// the state machine recognizes it (default 60s).
type Sweeper struct {
	service     *AttemptService
	store       AttemptStore
	interval    time.Duration
	batchSize   int
	concurrency int
	log         *zap.Logger
	now         func() time.Time
}

func NewSweeper(service *AttemptService, store AttemptStore, interval time.Duration, batchSize int, log *zap.Logger) *Sweeper {
	return NewSweeperWithClock(service, store, interval, batchSize, log, time.Now)
}

// NewSweeperWithClock allows deterministic expiry checks in tests.
func NewSweeperWithClock(service *AttemptService, store AttemptStore, interval time.Duration, batchSize int, log *zap.Logger, now func() time.Time) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{
		service:     service,
		store:       store,
		interval:    interval,
		batchSize:   batchSize,
		concurrency: 4,
		log:         log,
		now:         now,
	}
}

// Run sweeps on a fixed interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error("sweep pass failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce performs a single pass and returns how many attempts it
// force-submitted. A failure on one attempt is logged and does not abort the
// rest of the pass. Overlapping passes are harmless: Submit is idempotent
// per attempt and locked rows are skipped, not waited on.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.store.ListExpired(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	swept := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	results := make(chan struct{}, len(ids))
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := s.service.Submit(gctx, id, true); err != nil {
				s.log.Error("auto-submit failed",
					zap.String("attemptId", id.String()), zap.Error(err))
				return nil
			}
			results <- struct{}{}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for range results {
		swept++
	}

	monitoring.SweepPassCounter.Inc()
	monitoring.SweptAttemptCounter.Add(float64(swept))
	if swept > 0 {
		s.log.Info("sweep pass complete", zap.Int("swept", swept), zap.Int("candidates", len(ids)))
	}
	return swept, nil
}
