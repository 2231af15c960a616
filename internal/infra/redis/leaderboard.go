package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"gongzi-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Leaderboard keeps scores in a sorted set and the entries themselves in a hash:
//
//	ZADD quiz:leaderboard {score} {entryID}
//	HSET quiz:leaderboard:entries {entryID} {json}
type Leaderboard struct {
	client *redis.Client
}

const (
	leaderboardKey        = "quiz:leaderboard"
	leaderboardEntriesKey = "quiz:leaderboard:entries"
)

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (l *Leaderboard) Submit(ctx context.Context, entry domain.LeaderboardEntry) (string, error) {
	entry.ID = uuid.NewString()
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("encode leaderboard entry: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, leaderboardEntriesKey, entry.ID, raw)
	pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(entry.Score), Member: entry.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("submit leaderboard entry: %w", err)
	}
	return entry.ID, nil
}

// Top reads the highest scores. The sorted set orders equal scores by member, so every
// entry sharing the lowest returned score is fetched and ties are settled by timestamp.
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	top, err := l.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(top) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	ids := make([]string, 0, len(top))
	seen := make(map[string]struct{}, len(top))
	for _, z := range top {
		id := z.Member.(string)
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	boundary := strconv.FormatFloat(top[len(top)-1].Score, 'f', -1, 64)
	ties, err := l.client.ZRangeByScore(ctx, leaderboardKey, &redis.ZRangeBy{Min: boundary, Max: boundary}).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard ties: %w", err)
	}
	for _, id := range ties {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}

	raws, err := l.client.HMGet(ctx, leaderboardEntriesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard entries: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		var e domain.LeaderboardEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ranks(entries[j]) })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
