package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"labflow/internal/platform/kafka"
)

// KafkaNotifier publishes workflow events to the workflow events topic, keyed
// by workflow id so consumers see one workflow's events in order.
type KafkaNotifier struct {
	producer *kafka.Producer
	topic    string
	log      *slog.Logger
}

func NewKafkaNotifier(producer *kafka.Producer, topic string, log *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, log: log}
}

func (n *KafkaNotifier) WorkflowStarted(ctx context.Context, e WorkflowEvent) {
	e.Kind = KindWorkflowStarted
	n.publish(ctx, e)
}

func (n *KafkaNotifier) WorkflowCompleted(ctx context.Context, e WorkflowEvent) {
	e.Kind = KindWorkflowCompleted
	n.publish(ctx, e)
}

func (n *KafkaNotifier) ReagentShortage(ctx context.Context, e WorkflowEvent) {
	e.Kind = KindReagentShortage
	n.publish(ctx, e)
}

func (n *KafkaNotifier) publish(ctx context.Context, e WorkflowEvent) {
	value, err := json.Marshal(e)
	if err != nil {
		n.log.Error("encode workflow event", "kind", e.Kind, "error", err)
		return
	}
	if err := n.producer.Publish(ctx, n.topic, []byte(e.WorkflowID.String()), value); err != nil {
		n.log.Error("publish workflow event", "kind", e.Kind, "workflow_id", e.WorkflowID, "error", err)
	}
}
