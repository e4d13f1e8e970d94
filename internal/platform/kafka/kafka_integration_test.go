//go:build integration

package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"labflow/internal/platform/config"
	"labflow/internal/platform/kafka"
	"labflow/pkg/testutil/containers"
)

type collectingHandler struct {
	mu       sync.Mutex
	messages []*kafka.Message
}

func (h *collectingHandler) Handle(_ context.Context, msg *kafka.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return nil
}

func (h *collectingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

type KafkaSuite struct {
	suite.Suite
	cfg config.Kafka
}

func TestKafkaSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	broker := containers.GetManager().GetRedpanda(s.T()).Broker
	s.cfg = config.Kafka{
		Brokers:       []string{broker},
		ConsumerGroup: "labflow-test",
	}
}

func (s *KafkaSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "labflow.test.roundtrip"
	s.Require().NoError(kafka.EnsureTopics(ctx, s.cfg, topic))

	producer, err := kafka.NewProducer(s.cfg)
	s.Require().NoError(err)
	defer producer.Close()

	handler := &collectingHandler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	consumer, err := kafka.NewConsumer(s.cfg, []string{topic}, handler, logger)
	s.Require().NoError(err)
	defer consumer.Close()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Run(consumerCtx)
	}()

	s.Require().NoError(producer.Publish(ctx, topic, []byte("key-1"), []byte(`{"n":1}`)))
	s.Require().NoError(producer.Publish(ctx, topic, []byte("key-2"), []byte(`{"n":2}`)))

	s.Eventually(func() bool { return handler.count() == 2 }, 20*time.Second, 100*time.Millisecond)

	stopConsumer()
	<-done

	s.Equal("key-1", string(handler.messages[0].Key))
	s.Equal(topic, handler.messages[0].Topic)
}

func (s *KafkaSuite) TestEnsureTopicsIsIdempotent() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "labflow.test.idempotent"
	s.Require().NoError(kafka.EnsureTopics(ctx, s.cfg, topic))
	s.Require().NoError(kafka.EnsureTopics(ctx, s.cfg, topic))
}
