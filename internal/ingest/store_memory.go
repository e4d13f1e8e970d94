package ingest

import (
	"context"
	"sync"

	"labflow/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.MessageID]; exists {
		return sentinel.ErrConflict
	}
	s.records[rec.MessageID] = rec
	return nil
}

func (s *InMemoryStore) FindByMessageID(_ context.Context, messageID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[messageID]; ok {
		return rec, nil
	}
	return Record{}, sentinel.ErrNotFound
}
