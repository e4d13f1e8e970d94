package workflow

import (
	"context"
	"sort"
	"sync"

	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[id.WorkflowID]Workflow
	samples   map[id.SampleID]Sample
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[id.WorkflowID]Workflow),
		samples:   make(map[id.SampleID]Sample),
	}
}

func (s *InMemoryStore) SaveWorkflow(_ context.Context, wf Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = wf
	return nil
}

func (s *InMemoryStore) UpdateWorkflow(_ context.Context, wf Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.workflows[wf.ID] = wf
	return nil
}

func (s *InMemoryStore) FindWorkflowByID(_ context.Context, workflowID id.WorkflowID) (Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if wf, ok := s.workflows[workflowID]; ok {
		return wf, nil
	}
	return Workflow{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) SaveSample(_ context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[sample.ID] = sample
	return nil
}

func (s *InMemoryStore) UpdateSample(_ context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.samples[sample.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.samples[sample.ID] = sample
	return nil
}

func (s *InMemoryStore) ListSamples(_ context.Context, workflowID id.WorkflowID) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Sample
	for _, sample := range s.samples {
		if sample.WorkflowID == workflowID {
			out = append(out, sample)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *InMemoryStore) FindActiveSampleByBarcode(_ context.Context, barcode string) (Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  Sample
		found bool
	)
	for _, sample := range s.samples {
		if sample.Barcode != barcode || sample.Status.IsTerminal() {
			continue
		}
		if !found || sample.CreatedAt.After(best.CreatedAt) {
			best = sample
			found = true
		}
	}
	if !found {
		return Sample{}, sentinel.ErrNotFound
	}
	return best, nil
}

func (s *InMemoryStore) RebindSampleOrder(_ context.Context, placeholderID, realID id.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sid, sample := range s.samples {
		if sample.OrderID != nil && *sample.OrderID == placeholderID {
			oid := realID
			sample.OrderID = &oid
			sample.OrderAutoCreated = false
			s.samples[sid] = sample
		}
	}
	return nil
}
