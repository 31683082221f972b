package redis

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/leaderboard"
)

// Keys:
//
//	ZSET leaderboard:quiz:{quizID}  member=userID score=best raw score
//	ZSET leaderboard:global         member=userID score=sum of per-quiz bests
//	SET  leaderboard:quizzes        registry of quiz IDs with a live ZSET
const (
	quizKeyPrefix = "leaderboard:quiz:"
	globalKey     = "leaderboard:global"
	registryKey   = "leaderboard:quizzes"
	stagingSuffix = ":staging"
)

// recordBestScript applies best-score-wins atomically: the per-quiz entry
// only moves up, and the global sum is adjusted by the improvement delta.
var recordBestScript = redis.NewScript(`
local old = redis.call('ZSCORE', KEYS[1], ARGV[1])
local score = tonumber(ARGV[2])
if old and tonumber(old) >= score then
  return 0
end
local delta = score
if old then
  delta = score - tonumber(old)
end
redis.call('ZADD', KEYS[1], score, ARGV[1])
redis.call('ZINCRBY', KEYS[2], delta, ARGV[1])
redis.call('SADD', KEYS[3], ARGV[3])
return 1
`)

// LeaderboardCache is a Redis-backed implementation of leaderboard.Cache.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	rnd    *rand.Rand
}

// NewLeaderboardCache builds the cache. A zero ttl keeps keys forever;
// otherwise every write refreshes a jittered expiry, so an abandoned cache
// eventually evicts itself and reconciliation repopulates it on the next run.
func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) RecordBest(ctx context.Context, quizID, userID string, score int) (bool, error) {
	keys := []string{quizKey(quizID), globalKey, registryKey}
	improved, err := recordBestScript.Run(ctx, c.client, keys, userID, score, quizID).Int()
	if err != nil {
		return false, fmt.Errorf("record best score: %w", err)
	}
	if improved == 1 && c.ttl > 0 {
		pipe := c.client.Pipeline()
		ttl := c.ttlWithJitter()
		pipe.Expire(ctx, quizKey(quizID), ttl)
		pipe.Expire(ctx, globalKey, ttl)
		pipe.Expire(ctx, registryKey, ttl)
		_, _ = pipe.Exec(ctx)
	}
	return improved == 1, nil
}

func (c *LeaderboardCache) TopQuiz(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	return c.top(ctx, quizKey(quizID), limit)
}

func (c *LeaderboardCache) TopGlobal(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return c.top(ctx, globalKey, limit)
}

func (c *LeaderboardCache) top(ctx context.Context, key string, limit int) ([]domain.LeaderboardEntry, error) {
	ranked, err := c.client.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("ranked read: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, len(ranked))
	for i, z := range ranked {
		entries[i] = domain.LeaderboardEntry{
			Rank:   i + 1,
			UserID: z.Member.(string),
			Score:  int(z.Score),
		}
	}
	return entries, nil
}

// Rebuild writes fresh rankings into staging keys and renames them over the
// live ones, so readers never observe a half-built leaderboard. Live quiz
// keys absent from the new bests are deleted via the registry.
func (c *LeaderboardCache) Rebuild(ctx context.Context, bests []leaderboard.BestScore) error {
	perQuiz := make(map[string][]redis.Z)
	globalTotals := make(map[string]float64)
	for _, b := range bests {
		perQuiz[b.QuizID] = append(perQuiz[b.QuizID], redis.Z{Score: float64(b.Score), Member: b.UserID})
		globalTotals[b.UserID] += float64(b.Score)
	}

	stale, err := c.client.SMembers(ctx, registryKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read quiz registry: %w", err)
	}

	pipe := c.client.TxPipeline()
	for quizID, members := range perQuiz {
		staging := quizKey(quizID) + stagingSuffix
		pipe.Del(ctx, staging)
		pipe.ZAdd(ctx, staging, members...)
		pipe.Rename(ctx, staging, quizKey(quizID))
	}
	for _, quizID := range stale {
		if _, ok := perQuiz[quizID]; !ok {
			pipe.Del(ctx, quizKey(quizID))
		}
	}

	pipe.Del(ctx, globalKey+stagingSuffix)
	if len(globalTotals) > 0 {
		members := make([]redis.Z, 0, len(globalTotals))
		for userID, total := range globalTotals {
			members = append(members, redis.Z{Score: total, Member: userID})
		}
		pipe.ZAdd(ctx, globalKey+stagingSuffix, members...)
		pipe.Rename(ctx, globalKey+stagingSuffix, globalKey)
	} else {
		pipe.Del(ctx, globalKey)
	}

	pipe.Del(ctx, registryKey)
	if len(perQuiz) > 0 {
		ids := make([]interface{}, 0, len(perQuiz))
		for quizID := range perQuiz {
			ids = append(ids, quizID)
		}
		pipe.SAdd(ctx, registryKey, ids...)
	}

	if c.ttl > 0 {
		ttl := c.ttlWithJitter()
		for quizID := range perQuiz {
			pipe.Expire(ctx, quizKey(quizID), ttl)
		}
		pipe.Expire(ctx, globalKey, ttl)
		pipe.Expire(ctx, registryKey, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return nil
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func quizKey(quizID string) string {
	return quizKeyPrefix + quizID
}
