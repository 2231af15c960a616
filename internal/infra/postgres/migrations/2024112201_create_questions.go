package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

const createQuestionsSQL = `
CREATE TABLE IF NOT EXISTS questions (
	id         TEXT PRIMARY KEY,
	topic      TEXT NOT NULL,
	position   INTEGER NOT NULL DEFAULT 0,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS questions_topic_idx ON questions (topic);
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createQuestionsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS questions`)
			return err
		},
	)
}
