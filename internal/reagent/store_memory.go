package reagent

import (
	"context"
	"sync"

	id "labflow/pkg/domain"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	reagents map[id.InstrumentID][]Reagent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{reagents: make(map[id.InstrumentID][]Reagent)}
}

func (s *InMemoryStore) Install(_ context.Context, r Reagent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reagents[r.InstrumentID] = append(s.reagents[r.InstrumentID], r)
	return nil
}

func (s *InMemoryStore) ListInUse(_ context.Context, instrumentID id.InstrumentID) ([]Reagent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Reagent
	for _, r := range s.reagents[instrumentID] {
		if r.InUse {
			out = append(out, r)
		}
	}
	return out, nil
}
