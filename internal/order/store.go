package order

import (
	"context"
	"time"

	id "labflow/pkg/domain"
)

// Store persists the local test-order projection.
type Store interface {
	// Save inserts a projection record. Saving an ID that already exists is
	// a no-op, so replayed workflow initiations stay idempotent.
	Save(ctx context.Context, rec Record) error

	FindByID(ctx context.Context, orderID id.OrderID) (Record, error)

	// MarkResultReceived flips an order out of AWAITING_RESULT once a result
	// lands for it. Missing orders return sentinel.ErrNotFound.
	MarkResultReceived(ctx context.Context, orderID id.OrderID, at time.Time) error

	// ListStuck returns orders still awaiting a result that were created
	// before the cutoff, oldest first, capped at limit.
	ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)

	// ListAutoCreated returns placeholder orders created while the order
	// service was unreachable, oldest first, capped at limit.
	ListAutoCreated(ctx context.Context, limit int) ([]Record, error)

	// Rebind replaces a placeholder's locally generated ID with the real
	// upstream order ID and clears the auto-created flag.
	Rebind(ctx context.Context, placeholderID, realID id.OrderID) error
}
