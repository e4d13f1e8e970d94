package instrument

import (
	"context"
	"errors"

	domainerrors "labflow/pkg/domain-errors"
	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
	"labflow/pkg/requestcontext"
)

// Service covers instrument provisioning and operator mode changes. Status
// transitions stay with the orchestrator; this service never touches them.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates an instrument in READY mode and AVAILABLE status.
func (s *Service) Register(ctx context.Context, name string) (Instrument, error) {
	if name == "" {
		return Instrument{}, domainerrors.New(domainerrors.CodeBadRequest, "instrument name is required")
	}
	now := requestcontext.Now(ctx)
	inst := Instrument{
		ID:        id.NewInstrumentID(),
		Name:      name,
		Mode:      ModeReady,
		Status:    StatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, inst); err != nil {
		return Instrument{}, domainerrors.New(domainerrors.CodeInternal, "save instrument: "+err.Error())
	}
	return inst, nil
}

// Get returns one instrument.
func (s *Service) Get(ctx context.Context, instrumentID id.InstrumentID) (Instrument, error) {
	inst, err := s.store.FindByID(ctx, instrumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Instrument{}, domainerrors.New(domainerrors.CodeNotFound, "instrument not found: "+instrumentID.String())
		}
		return Instrument{}, domainerrors.New(domainerrors.CodeInternal, "load instrument: "+err.Error())
	}
	return inst, nil
}

// SetMode records an operator mode change with its reason.
func (s *Service) SetMode(ctx context.Context, instrumentID id.InstrumentID, mode Mode, reason string) (Instrument, error) {
	if !mode.IsValid() {
		return Instrument{}, domainerrors.New(domainerrors.CodeBadRequest, "invalid mode: "+string(mode))
	}
	if err := s.store.SetMode(ctx, instrumentID, mode, reason); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Instrument{}, domainerrors.New(domainerrors.CodeNotFound, "instrument not found: "+instrumentID.String())
		}
		return Instrument{}, domainerrors.New(domainerrors.CodeInternal, "set mode: "+err.Error())
	}
	return s.Get(ctx, instrumentID)
}
