package postgres

import (
	"context"
	"fmt"

	"gongzi-quiz-service/internal/domain"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboard_entries"`

	ID          string `bun:"id,pk"`
	UserID      string `bun:"user_id"`
	DisplayName string `bun:"display_name"`
	Score       int    `bun:"score"`
	Timestamp   int64  `bun:"ts"`
}

// Leaderboard stores final scores through bun.
type Leaderboard struct {
	db *bun.DB
}

func NewLeaderboard(db *bun.DB) *Leaderboard {
	return &Leaderboard{db: db}
}

func (l *Leaderboard) Submit(ctx context.Context, entry domain.LeaderboardEntry) (string, error) {
	row := leaderboardRow{
		ID:          uuid.NewString(),
		UserID:      entry.UserID,
		DisplayName: entry.DisplayName,
		Score:       entry.Score,
		Timestamp:   entry.Timestamp,
	}
	if _, err := l.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return "", fmt.Errorf("insert leaderboard entry: %w", err)
	}
	return row.ID, nil
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	var rows []leaderboardRow
	err := l.db.NewSelect().
		Model(&rows).
		OrderExpr("score DESC, ts ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	out := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.LeaderboardEntry{
			ID:          r.ID,
			UserID:      r.UserID,
			DisplayName: r.DisplayName,
			Score:       r.Score,
			Timestamp:   r.Timestamp,
		})
	}
	return out, nil
}
