package instrument

import (
	"context"
	"sync"
	"time"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

// InMemoryStore keeps instruments in a map for unit tests and development.
// The mutex gives the same claim semantics as the conditional UPDATE in the
// Postgres store.
type InMemoryStore struct {
	mu          sync.RWMutex
	instruments map[id.InstrumentID]Instrument
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{instruments: make(map[id.InstrumentID]Instrument)}
}

func (s *InMemoryStore) Save(_ context.Context, inst Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[inst.ID] = inst
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, instrumentID id.InstrumentID) (Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if inst, ok := s.instruments[instrumentID]; ok {
		return inst, nil
	}
	return Instrument{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) SetMode(_ context.Context, instrumentID id.InstrumentID, mode Mode, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instruments[instrumentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	inst.Mode = mode
	inst.ModeReason = reason
	inst.UpdatedAt = time.Now()
	s.instruments[instrumentID] = inst
	return nil
}

func (s *InMemoryStore) Claim(_ context.Context, instrumentID id.InstrumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instruments[instrumentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if inst.Status != StatusAvailable {
		return sentinel.ErrInvalidState
	}
	inst.Status = StatusRunning
	inst.UpdatedAt = time.Now()
	s.instruments[instrumentID] = inst
	return nil
}

func (s *InMemoryStore) Release(_ context.Context, instrumentID id.InstrumentID, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instruments[instrumentID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if inst.Status != StatusRunning {
		return sentinel.ErrInvalidState
	}
	inst.Status = to
	inst.UpdatedAt = time.Now()
	s.instruments[instrumentID] = inst
	return nil
}
