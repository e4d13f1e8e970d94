//go:build integration

package ingest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"labflow/internal/ingest"
	platformredis "labflow/internal/platform/redis"
	"labflow/pkg/testutil/containers"
)

type DedupeRedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *ingest.DedupeCache
}

func TestDedupeRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(DedupeRedisSuite))
}

func (s *DedupeRedisSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	client := &platformredis.Client{Client: s.redis.Client}
	s.cache = ingest.NewDedupeCache(client, time.Hour)
}

func (s *DedupeRedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *DedupeRedisSuite) TestSeenOnlyAfterMark() {
	ctx := context.Background()

	s.False(s.cache.Seen(ctx, "msg-001"), "unmarked ids read as unseen")
	s.False(s.cache.Seen(ctx, "msg-001"), "reads never mark")

	s.cache.Mark(ctx, "msg-001")
	s.True(s.cache.Seen(ctx, "msg-001"))
	s.False(s.cache.Seen(ctx, "msg-002"))
}

func (s *DedupeRedisSuite) TestMarkExpires() {
	ctx := context.Background()
	short := ingest.NewDedupeCache(&platformredis.Client{Client: s.redis.Client}, 50*time.Millisecond)

	short.Mark(ctx, "msg-003")
	s.True(short.Seen(ctx, "msg-003"))
	time.Sleep(100 * time.Millisecond)
	s.False(short.Seen(ctx, "msg-003"))
}
