package memory

import (
	"context"
	"sort"
	"sync"

	"gongzi-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// Leaderboard is an append-only in-memory score list.
type Leaderboard struct {
	mu      sync.RWMutex
	entries []domain.LeaderboardEntry
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{}
}

func (l *Leaderboard) Submit(_ context.Context, entry domain.LeaderboardEntry) (string, error) {
	entry.ID = uuid.NewString()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return entry.ID, nil
}

func (l *Leaderboard) Top(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	l.mu.RLock()
	out := append([]domain.LeaderboardEntry(nil), l.entries...)
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Ranks(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
