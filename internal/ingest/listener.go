package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"labflow/internal/hl7"
	"labflow/internal/ingest/metrics"
	"labflow/internal/platform/kafka"
	"labflow/pkg/platform/sentinel"
)

// Parser extracts structured observations from a raw result payload.
type Parser interface {
	Parse(raw []byte) (hl7.Result, error)
}

// Completer advances workflow state when a result lands. Returns
// sentinel.ErrNotFound when no sample is awaiting the barcode.
type Completer interface {
	RecordSampleResult(ctx context.Context, barcode string, receivedAt time.Time) error
}

// Deduper is the advisory fast path over fully processed message ids.
type Deduper interface {
	Seen(ctx context.Context, messageID string) bool
	Mark(ctx context.Context, messageID string)
}

// Listener consumes "result published" events and classifies each as
// SUCCESS, DUPLICATE or FAILED. Only unclassified errors propagate to the
// consumer loop, leaving the offset uncommitted for broker redelivery;
// everything classified returns nil so the offset commits.
type Listener struct {
	parser    Parser
	results   ResultStore
	dedupe    Deduper
	completer Completer
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewListener(parser Parser, results ResultStore, dedupe Deduper, completer Completer, m *metrics.Metrics, log *slog.Logger) *Listener {
	return &Listener{
		parser:    parser,
		results:   results,
		dedupe:    dedupe,
		completer: completer,
		metrics:   m,
		log:       log,
	}
}

// Handle implements the consumer handler contract.
func (l *Listener) Handle(ctx context.Context, msg *kafka.Message) error {
	var event ResultEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		l.recordFailed(ctx, string(msg.Key), "decode result event", err)
		return nil
	}
	if event.MessageID == "" {
		l.recordFailed(ctx, string(msg.Key), "result event missing message id", nil)
		return nil
	}

	if l.dedupe != nil && l.dedupe.Seen(ctx, event.MessageID) {
		// Marked only after a fully successful pass, so nothing is left to
		// retry here.
		l.metrics.IncrementDedupeHit()
		l.recordDuplicate(ctx, event.MessageID)
		return nil
	}

	parsed, err := l.parser.Parse([]byte(event.Raw))
	if err != nil {
		l.recordFailed(ctx, event.MessageID, "parse result payload", err)
		return nil
	}

	err = l.results.Save(ctx, Record{
		MessageID:    event.MessageID,
		InstrumentID: event.InstrumentID,
		OrderID:      event.OrderID,
		Barcode:      event.Barcode,
		Raw:          []byte(event.Raw),
		Parsed:       parsed,
		ReceivedAt:   msg.Timestamp,
	})
	switch {
	case errors.Is(err, sentinel.ErrConflict):
		// The row landed on an earlier delivery, but that delivery may have
		// died before the sample advanced. Re-run the advance before
		// committing; once the sample is terminal it reports ErrNotFound and
		// the retry is a no-op.
		if err := l.advanceSample(ctx, event.MessageID, event.Barcode, msg.Timestamp); err != nil {
			return err
		}
		l.markProcessed(ctx, event.MessageID)
		l.recordDuplicate(ctx, event.MessageID)
		return nil
	case err != nil:
		// Unclassified: storage trouble is not a bad message. Escalate for
		// redelivery.
		return fmt.Errorf("persist result %s: %w", event.MessageID, err)
	}

	if err := l.advanceSample(ctx, event.MessageID, event.Barcode, msg.Timestamp); err != nil {
		return err
	}

	l.markProcessed(ctx, event.MessageID)
	l.metrics.IncrementOutcome(string(OutcomeSuccess))
	l.log.InfoContext(ctx, "result ingested",
		"message_id", event.MessageID,
		"barcode", event.Barcode,
		"instrument_id", event.InstrumentID,
		"observations", len(parsed.Observations),
	)
	return nil
}

// advanceSample pushes the in-flight sample forward through the workflow
// service. A missing sample is fine (late delivery after a resync, an
// externally driven run, or an advance that already happened); anything else
// escalates for redelivery.
func (l *Listener) advanceSample(ctx context.Context, messageID, barcode string, receivedAt time.Time) error {
	err := l.completer.RecordSampleResult(ctx, barcode, receivedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		l.log.WarnContext(ctx, "result has no in-flight sample",
			"message_id", messageID, "barcode", barcode)
		return nil
	default:
		return fmt.Errorf("advance sample for %s: %w", barcode, err)
	}
}

func (l *Listener) markProcessed(ctx context.Context, messageID string) {
	if l.dedupe != nil {
		l.dedupe.Mark(ctx, messageID)
	}
}

func (l *Listener) recordDuplicate(ctx context.Context, messageID string) {
	l.metrics.IncrementOutcome(string(OutcomeDuplicate))
	l.log.InfoContext(ctx, "duplicate result ignored", "message_id", messageID)
}

func (l *Listener) recordFailed(ctx context.Context, key, reason string, err error) {
	l.metrics.IncrementOutcome(string(OutcomeFailed))
	l.log.ErrorContext(ctx, "result ingestion failed",
		"message_id", key, "reason", reason, "error", err)
}
