package memory

import (
	"context"
	"sort"
	"sync"

	"gongzi-quiz-service/internal/history"
	"github.com/google/uuid"
)

// DocumentStore keeps history documents in memory, standing in for the remote store
// when no database is configured.
type DocumentStore struct {
	mu          sync.RWMutex
	collections map[string][]history.Document
	newID       func() string
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		collections: make(map[string][]history.Document),
		newID:       uuid.NewString,
	}
}

func (s *DocumentStore) Insert(_ context.Context, collection string, timestamp int64, data []byte) (string, error) {
	doc := history.Document{
		ID:        s.newID(),
		Timestamp: timestamp,
		Data:      append([]byte(nil), data...),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], doc)
	return doc.ID, nil
}

func (s *DocumentStore) List(_ context.Context, collection string) ([]history.Document, error) {
	s.mu.RLock()
	out := append([]history.Document(nil), s.collections[collection]...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp > out[j].Timestamp
	})
	return out, nil
}

func (s *DocumentStore) Delete(_ context.Context, collection, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collections[collection]
	for i, doc := range docs {
		if doc.ID == id {
			s.collections[collection] = append(docs[:i:i], docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
