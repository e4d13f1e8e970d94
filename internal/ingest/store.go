package ingest

import "context"

// ResultStore persists ingested results. Save is the idempotency source of
// truth: inserting a message id that was already stored returns
// sentinel.ErrConflict and persists nothing.
type ResultStore interface {
	Save(ctx context.Context, rec Record) error
	FindByMessageID(ctx context.Context, messageID string) (Record, error)
}
