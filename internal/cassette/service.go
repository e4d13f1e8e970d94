package cassette

import (
	"context"
	"errors"

	"labflow/internal/instrument"
	domainerrors "labflow/pkg/domain-errors"
	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
)

// InstrumentReader checks cassette ownership targets.
type InstrumentReader interface {
	FindByID(ctx context.Context, instrumentID id.InstrumentID) (instrument.Instrument, error)
}

// Service covers cassette intake. Dequeuing belongs to the workflow
// orchestrator's process-next operation.
type Service struct {
	store       Store
	instruments InstrumentReader
}

func NewService(store Store, instruments InstrumentReader) *Service {
	return &Service{store: store, instruments: instruments}
}

// Enqueue appends a cassette to the instrument's queue, assigning the next
// queue position.
func (s *Service) Enqueue(ctx context.Context, instrumentID id.InstrumentID, samples []SampleSpec) (Cassette, error) {
	if len(samples) == 0 {
		return Cassette{}, domainerrors.New(domainerrors.CodeBadRequest, "cassette requires at least one sample")
	}
	for _, spec := range samples {
		if spec.Barcode == "" {
			return Cassette{}, domainerrors.New(domainerrors.CodeBadRequest, "sample barcode is required")
		}
	}
	if _, err := s.instruments.FindByID(ctx, instrumentID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Cassette{}, domainerrors.New(domainerrors.CodeNotFound, "instrument not found: "+instrumentID.String())
		}
		return Cassette{}, domainerrors.New(domainerrors.CodeInternal, "load instrument: "+err.Error())
	}

	c, err := s.store.Enqueue(ctx, instrumentID, samples)
	if err != nil {
		return Cassette{}, domainerrors.New(domainerrors.CodeInternal, "enqueue cassette: "+err.Error())
	}
	return c, nil
}

// Get returns one cassette.
func (s *Service) Get(ctx context.Context, cassetteID id.CassetteID) (Cassette, error) {
	c, err := s.store.FindByID(ctx, cassetteID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Cassette{}, domainerrors.New(domainerrors.CodeNotFound, "cassette not found: "+cassetteID.String())
		}
		return Cassette{}, domainerrors.New(domainerrors.CodeInternal, "load cassette: "+err.Error())
	}
	return c, nil
}
