package notify

import (
	"context"
	"log/slog"
)

// LogNotifier is the fallback sink used when no broker is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) WorkflowStarted(ctx context.Context, e WorkflowEvent) {
	n.emit(ctx, KindWorkflowStarted, e)
}

func (n *LogNotifier) WorkflowCompleted(ctx context.Context, e WorkflowEvent) {
	n.emit(ctx, KindWorkflowCompleted, e)
}

func (n *LogNotifier) ReagentShortage(ctx context.Context, e WorkflowEvent) {
	n.emit(ctx, KindReagentShortage, e)
}

func (n *LogNotifier) emit(ctx context.Context, kind string, e WorkflowEvent) {
	n.log.InfoContext(ctx, "workflow notification",
		"kind", kind,
		"workflow_id", e.WorkflowID,
		"instrument_id", e.InstrumentID,
		"message", e.Message,
	)
}
