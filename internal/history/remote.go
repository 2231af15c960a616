package history

import (
	"context"
	"encoding/json"
	"fmt"
)

// Remote is the authoritative but unreliable store for one history kind.
type Remote[T any] interface {
	Save(ctx context.Context, collection string, item T) (string, error)
	// LoadAll returns items ordered by timestamp, newest first.
	LoadAll(ctx context.Context, collection string) ([]T, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// Document is a stored JSON payload with its store-assigned id.
type Document struct {
	ID        string
	Timestamp int64
	Data      []byte
}

// DocumentStore persists JSON documents grouped into collections.
type DocumentStore interface {
	Insert(ctx context.Context, collection string, timestamp int64, data []byte) (string, error)
	// List returns documents ordered by timestamp, newest first.
	List(ctx context.Context, collection string) ([]Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// DocumentRemote adapts a DocumentStore to Remote[T] using JSON encoding.
type DocumentRemote[T Item[T]] struct {
	docs DocumentStore
}

func NewDocumentRemote[T Item[T]](docs DocumentStore) *DocumentRemote[T] {
	return &DocumentRemote[T]{docs: docs}
}

func (r *DocumentRemote[T]) Save(ctx context.Context, collection string, item T) (string, error) {
	// The store assigns the id; the local one is never persisted.
	data, err := json.Marshal(item.WithHistoryID(""))
	if err != nil {
		return "", fmt.Errorf("encode history item: %w", err)
	}
	return r.docs.Insert(ctx, collection, item.HistoryTimestamp(), data)
}

func (r *DocumentRemote[T]) LoadAll(ctx context.Context, collection string) ([]T, error) {
	docs, err := r.docs.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := json.Unmarshal(doc.Data, &item); err != nil {
			return nil, fmt.Errorf("decode history document %s: %w", doc.ID, err)
		}
		items = append(items, item.WithHistoryID(doc.ID))
	}
	return items, nil
}

func (r *DocumentRemote[T]) Delete(ctx context.Context, collection, id string) (bool, error) {
	return r.docs.Delete(ctx, collection, id)
}
