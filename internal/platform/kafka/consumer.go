package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"labflow/internal/platform/config"
)

// Message is the transport-neutral view of a consumed record handed to
// handlers.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes one message. Returning an error leaves the offset
// uncommitted so the broker redelivers the message.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Consumer runs a group consumer loop over the configured topics. Offsets are
// committed per record only after the handler returns nil, giving
// at-least-once delivery.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger
}

// NewConsumer creates a group consumer for the given topics.
func NewConsumer(cfg config.Kafka, topics []string, handler Handler, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, handler: handler, logger: logger}, nil
}

// Run polls until the context is cancelled. Handler errors are logged and the
// record is left uncommitted for redelivery; the loop itself never dies on a
// single bad message.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var committable []*kgo.Record
		fetches.EachRecord(func(record *kgo.Record) {
			msg := &Message{
				Topic:     record.Topic,
				Key:       record.Key,
				Value:     record.Value,
				Timestamp: record.Timestamp,
			}
			if err := c.handler.Handle(ctx, msg); err != nil {
				c.logger.ErrorContext(ctx, "handler failed, leaving offset uncommitted",
					"topic", record.Topic,
					"key", string(record.Key),
					"error", err,
				)
				return
			}
			committable = append(committable, record)
		})

		if len(committable) > 0 {
			if err := c.client.CommitRecords(ctx, committable...); err != nil {
				c.logger.ErrorContext(ctx, "commit offsets failed", "error", err)
			}
		}
	}
}

// Close releases the consumer client.
func (c *Consumer) Close() {
	c.client.Close()
}
