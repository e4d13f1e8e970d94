package ingest

import (
	"context"
	"time"

	platformredis "labflow/internal/platform/redis"
)

// DedupeCache is a Redis fast path in front of the database's message-id
// constraint. A message id is marked only after the full pipeline succeeded,
// so a cache hit means the result is persisted and the sample advance ran.
// It is advisory only: a cache miss on a redelivered message still classifies
// DUPLICATE at the store, the cache just keeps the common case off Postgres.
type DedupeCache struct {
	client *platformredis.Client
	ttl    time.Duration
}

func NewDedupeCache(client *platformredis.Client, ttl time.Duration) *DedupeCache {
	return &DedupeCache{client: client, ttl: ttl}
}

// Seen reports whether the message id was marked as fully processed. Cache
// errors and an unconfigured client degrade to "not seen" so the database
// constraint decides.
func (c *DedupeCache) Seen(ctx context.Context, messageID string) bool {
	if c == nil || c.client == nil {
		return false
	}
	n, err := c.client.Exists(ctx, dedupeKey(messageID)).Result()
	return err == nil && n > 0
}

// Mark records the message id once processing finished. Best effort: a lost
// mark costs one extra round trip to the database constraint on redelivery.
func (c *DedupeCache) Mark(ctx context.Context, messageID string) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Set(ctx, dedupeKey(messageID), 1, c.ttl)
}

func dedupeKey(messageID string) string {
	return "labflow:ingest:msg:" + messageID
}
