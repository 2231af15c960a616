package postgres

import (
	"context"
	"fmt"

	"gongzi-quiz-service/internal/history"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DocumentStore is the remote history store: one JSONB row per history item,
// grouped by collection path (users/{uid}/{kind}).
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

func (s *DocumentStore) Insert(ctx context.Context, collection string, timestamp int64, data []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history_documents (id, collection, ts, data) VALUES ($1, $2, $3, $4)`,
		id, collection, timestamp, data)
	if err != nil {
		return "", fmt.Errorf("insert history document: %w", err)
	}
	return id, nil
}

func (s *DocumentStore) List(ctx context.Context, collection string) ([]history.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, data FROM history_documents WHERE collection=$1 ORDER BY ts DESC, created_at DESC`,
		collection)
	if err != nil {
		return nil, fmt.Errorf("list history documents: %w", err)
	}
	defer rows.Close()

	var docs []history.Document
	for rows.Next() {
		var doc history.Document
		if err := rows.Scan(&doc.ID, &doc.Timestamp, &doc.Data); err != nil {
			return nil, fmt.Errorf("scan history document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *DocumentStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM history_documents WHERE collection=$1 AND id=$2`, collection, id)
	if err != nil {
		return false, fmt.Errorf("delete history document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
