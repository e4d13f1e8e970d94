package cassette

import (
	"context"
	"sync"
	"time"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

// InMemoryStore keeps cassette queues in memory. One mutex covers both the
// position counters and the claim, which is exactly the atomicity the
// Postgres store gets from its conditional update.
type InMemoryStore struct {
	mu        sync.Mutex
	cassettes map[id.CassetteID]Cassette
	positions map[id.InstrumentID]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		cassettes: make(map[id.CassetteID]Cassette),
		positions: make(map[id.InstrumentID]int64),
	}
}

func (s *InMemoryStore) Enqueue(_ context.Context, instrumentID id.InstrumentID, samples []SampleSpec) (Cassette, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[instrumentID]++
	c := Cassette{
		ID:            id.NewCassetteID(),
		InstrumentID:  instrumentID,
		QueuePosition: s.positions[instrumentID],
		Samples:       append([]SampleSpec(nil), samples...),
		CreatedAt:     time.Now(),
	}
	s.cassettes[c.ID] = c
	return c, nil
}

func (s *InMemoryStore) TakeNext(_ context.Context, instrumentID id.InstrumentID) (Cassette, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  Cassette
		found bool
	)
	for _, c := range s.cassettes {
		if c.InstrumentID != instrumentID || c.Processed {
			continue
		}
		if !found || c.QueuePosition < best.QueuePosition {
			best = c
			found = true
		}
	}
	if !found {
		return Cassette{}, sentinel.ErrNotFound
	}
	best.Processed = true
	s.cassettes[best.ID] = best
	return best, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, cassetteID id.CassetteID) (Cassette, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cassettes[cassetteID]; ok {
		return c, nil
	}
	return Cassette{}, sentinel.ErrNotFound
}
