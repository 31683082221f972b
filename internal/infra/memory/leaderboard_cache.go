package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/leaderboard"
)

// LeaderboardCache is an in-memory implementation of leaderboard.Cache,
// useful without Redis and in tests. Best scores per (quiz, user) are the
// only stored state; the global ranking is the per-user sum of quiz bests.
type LeaderboardCache struct {
	mu   sync.RWMutex
	best map[string]map[string]int // quizID -> userID -> best score
}

func NewLeaderboardCache() *LeaderboardCache {
	return &LeaderboardCache{best: make(map[string]map[string]int)}
}

func (c *LeaderboardCache) RecordBest(_ context.Context, quizID, userID string, score int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.best[quizID] == nil {
		c.best[quizID] = make(map[string]int)
	}
	if cur, ok := c.best[quizID][userID]; ok && score <= cur {
		return false, nil
	}
	c.best[quizID][userID] = score
	return true, nil
}

func (c *LeaderboardCache) TopQuiz(_ context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return rank(c.best[quizID], limit), nil
}

func (c *LeaderboardCache) TopGlobal(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	totals := make(map[string]int)
	for _, users := range c.best {
		for userID, score := range users {
			totals[userID] += score
		}
	}
	return rank(totals, limit), nil
}

func (c *LeaderboardCache) Rebuild(_ context.Context, bests []leaderboard.BestScore) error {
	fresh := make(map[string]map[string]int)
	for _, b := range bests {
		if fresh[b.QuizID] == nil {
			fresh[b.QuizID] = make(map[string]int)
		}
		fresh[b.QuizID][b.UserID] = b.Score
	}

	c.mu.Lock()
	c.best = fresh
	c.mu.Unlock()
	return nil
}

func rank(scores map[string]int, limit int) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(scores))
	for userID, score := range scores {
		entries = append(entries, domain.LeaderboardEntry{UserID: userID, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
