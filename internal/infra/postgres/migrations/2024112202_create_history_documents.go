package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

const createHistoryDocumentsSQL = `
CREATE TABLE IF NOT EXISTS history_documents (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	ts         BIGINT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS history_documents_collection_ts_idx ON history_documents (collection, ts DESC);
`

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createHistoryDocumentsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS history_documents`)
			return err
		},
	)
}
