package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

const createLeaderboardSQL = `
CREATE TABLE IF NOT EXISTS leaderboard_entries (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL,
	score        INTEGER NOT NULL,
	ts           BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS leaderboard_entries_rank_idx ON leaderboard_entries (score DESC, ts ASC);
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createLeaderboardSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS leaderboard_entries`)
			return err
		},
	)
}
