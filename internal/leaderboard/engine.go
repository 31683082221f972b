package leaderboard

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"quiz-attempt-service/internal/domain"
)

// Scope selects which ranking to read.
type Scope string

const (
	ScopeQuiz   Scope = "quiz"
	ScopeGlobal Scope = "global"
)

// ErrInvalidScope reports a Get call with a Scope value that is neither
// ScopeQuiz nor ScopeGlobal. This is a caller bug, not missing data.
var ErrInvalidScope = errors.New("invalid leaderboard scope")

// BestScore is a user's best raw score for one quiz, derived from Result rows.
type BestScore struct {
	QuizID string
	UserID string
	Score  int
}

// Cache is the derived, disposable ranking store. It is never the source of
// truth: Rebuild must fully overwrite it from Result-derived bests.
type Cache interface {
	// RecordBest applies best-score-wins semantics: the user's per-quiz entry
	// and the global aggregate only move when score beats the stored best.
	// Reports whether anything changed.
	RecordBest(ctx context.Context, quizID, userID string, score int) (bool, error)

	TopQuiz(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error)
	TopGlobal(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)

	// Rebuild replaces all cached rankings with the given bests.
	Rebuild(ctx context.Context, bests []BestScore) error
}

// ResultSource recomputes per-user bests from durable results.
type ResultSource interface {
	ListBestScores(ctx context.Context) ([]BestScore, error)
}

// Engine maintains per-quiz and global rankings over a Cache and fans
// updated per-quiz snapshots out to subscribers.
type Engine struct {
	cache Cache
	hub   *Hub
	topN  int
	log   *zap.Logger
	now   func() time.Time
}

func NewEngine(cache Cache, hub *Hub, log *zap.Logger) *Engine {
	return &Engine{cache: cache, hub: hub, topN: 10, log: log, now: time.Now}
}

// RecordResult folds a freshly committed result into the rankings. A score
// below the user's stored best is a no-op; the leaderboard tracks best
// attempts, not latest ones.
func (e *Engine) RecordResult(ctx context.Context, result domain.Result) error {
	improved, err := e.cache.RecordBest(ctx, result.QuizID, result.UserID, result.RawScore)
	if err != nil {
		return err
	}
	if improved && e.hub != nil {
		snapshot, err := e.Get(ctx, ScopeQuiz, result.QuizID, e.topN)
		if err != nil {
			e.log.Warn("leaderboard snapshot for broadcast failed",
				zap.String("quizId", result.QuizID), zap.Error(err))
			return nil
		}
		e.hub.Publish(snapshot)
	}
	return nil
}

// Get serves a ranking from cache only. When the cache cannot be reached the
// error wraps domain.ErrLeaderboardUnavailable; stale or recomputed-on-read
// rankings are never substituted.
func (e *Engine) Get(ctx context.Context, scope Scope, quizID string, limit int) (domain.Leaderboard, error) {
	if limit <= 0 {
		limit = e.topN
	}

	var (
		entries []domain.LeaderboardEntry
		err     error
	)
	switch scope {
	case ScopeGlobal:
		entries, err = e.cache.TopGlobal(ctx, limit)
		quizID = ""
	case ScopeQuiz:
		entries, err = e.cache.TopQuiz(ctx, quizID, limit)
	default:
		return domain.Leaderboard{}, ErrInvalidScope
	}
	if err != nil {
		return domain.Leaderboard{}, errors.Join(domain.ErrLeaderboardUnavailable, err)
	}
	return domain.Leaderboard{QuizID: quizID, Entries: entries, UpdatedAt: e.now()}, nil
}

// Subscribe streams per-quiz leaderboard updates. The caller must invoke the
// returned cancel function to avoid leaks.
func (e *Engine) Subscribe(quizID string) (<-chan domain.Leaderboard, func()) {
	return e.hub.Subscribe(quizID)
}
