package leaderboard_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/infra/memory"
	"quiz-attempt-service/internal/leaderboard"
)

type staticSource struct {
	bests []leaderboard.BestScore
}

func (s staticSource) ListBestScores(context.Context) ([]leaderboard.BestScore, error) {
	return s.bests, nil
}

func TestReconcileOverwritesDriftedCache(t *testing.T) {
	cache := memory.NewLeaderboardCache()
	ctx := context.Background()

	// Drifted state: a score the durable results do not back, plus a stale
	// entry for a user whose results were since removed.
	if _, err := cache.RecordBest(ctx, "quiz-1", "alice", 99); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := cache.RecordBest(ctx, "quiz-9", "ghost", 50); err != nil {
		t.Fatalf("seed: %v", err)
	}

	source := staticSource{bests: []leaderboard.BestScore{
		{QuizID: "quiz-1", UserID: "alice", Score: 8},
		{QuizID: "quiz-1", UserID: "bob", Score: 6},
	}}
	reconciler := leaderboard.NewReconciler(cache, source, time.Minute, zap.NewNop())
	if err := reconciler.ReconcileOnce(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	entries, err := cache.TopQuiz(ctx, "quiz-1", 10)
	if err != nil {
		t.Fatalf("top quiz: %v", err)
	}
	if len(entries) != 2 || entries[0].UserID != "alice" || entries[0].Score != 8 {
		t.Fatalf("cache not overwritten: %+v", entries)
	}

	stale, err := cache.TopQuiz(ctx, "quiz-9", 10)
	if err != nil {
		t.Fatalf("top stale quiz: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale quiz survived rebuild: %+v", stale)
	}

	global, err := cache.TopGlobal(ctx, 10)
	if err != nil {
		t.Fatalf("top global: %v", err)
	}
	if len(global) != 2 || global[0].UserID != "alice" || global[0].Score != 8 {
		t.Fatalf("global not rebuilt: %+v", global)
	}
}

func TestReconcileEmptySourceClearsCache(t *testing.T) {
	cache := memory.NewLeaderboardCache()
	ctx := context.Background()

	if _, err := cache.RecordBest(ctx, "quiz-1", "alice", 5); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reconciler := leaderboard.NewReconciler(cache, staticSource{}, time.Minute, zap.NewNop())
	if err := reconciler.ReconcileOnce(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	entries, err := cache.TopQuiz(ctx, "quiz-1", 10)
	if err != nil {
		t.Fatalf("top quiz: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty cache, got %+v", entries)
	}
}
