package order

import (
	"context"
	"sort"
	"sync"
	"time"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	orders map[id.OrderID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[id.OrderID]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[rec.ID]; exists {
		return nil
	}
	s.orders[rec.ID] = rec
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orderID id.OrderID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.orders[orderID]; ok {
		return rec, nil
	}
	return Record{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) MarkResultReceived(_ context.Context, orderID id.OrderID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.orders[orderID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Status = StatusResultReceived
	rec.UpdatedAt = at
	s.orders[orderID] = rec
	return nil
}

func (s *InMemoryStore) ListStuck(_ context.Context, cutoff time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.orders {
		if rec.Status == StatusAwaitingResult && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sortByCreatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListAutoCreated(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.orders {
		if rec.AutoCreated {
			out = append(out, rec)
		}
	}
	sortByCreatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Rebind(_ context.Context, placeholderID, realID id.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.orders[placeholderID]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.orders, placeholderID)
	rec.ID = realID
	rec.AutoCreated = false
	s.orders[realID] = rec
	return nil
}

func sortByCreatedAt(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
}
