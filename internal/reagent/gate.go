package reagent

import (
	"context"

	id "labflow/pkg/domain"
	"labflow/pkg/requestcontext"
)

// Store reads the reagents currently installed and in active use on an
// instrument.
type Store interface {
	ListInUse(ctx context.Context, instrumentID id.InstrumentID) ([]Reagent, error)
}

// Gate answers "can instrument X run now?" from reagent inventory. Pure read,
// no side effects on inventory.
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// SufficientFor requires every in-use reagent to be usable. An instrument
// with nothing loaded is insufficient by definition: it cannot run.
func (g *Gate) SufficientFor(ctx context.Context, instrumentID id.InstrumentID) (bool, error) {
	reagents, err := g.store.ListInUse(ctx, instrumentID)
	if err != nil {
		return false, err
	}
	if len(reagents) == 0 {
		return false, nil
	}
	now := requestcontext.Now(ctx)
	for _, r := range reagents {
		if !r.Usable(now) {
			return false, nil
		}
	}
	return true, nil
}
