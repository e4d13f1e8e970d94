// Package resync closes the result-delivery loop. A timer-driven sweep finds
// orders stuck awaiting a result past a timeout and asks the instrument side
// to re-publish their results; redundant requests are harmless because the
// ingestion listener classifies redeliveries as duplicates. The sweep also
// reconciles placeholder orders created while the order service was down.
package resync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"labflow/internal/order"
	"labflow/internal/platform/config"
	"labflow/internal/resync/metrics"
	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
	"labflow/pkg/requestcontext"
)

// requestedBy names this service in resync events so the instrument side can
// attribute republish traffic.
const requestedBy = "labflow"

// Event is the "resync requested" payload.
type Event struct {
	RequestedBy string    `json:"requestedBy"`
	Barcodes    []string  `json:"barcodes"`
	RequestedAt time.Time `json:"requestedAt"`
}

// EventPublisher publishes resync events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// OrderProber looks up orders through the open-circuit probe path.
type OrderProber interface {
	Probe(ctx context.Context, barcode string) (order.TestOrder, error)
}

// SampleRebinder repoints samples from placeholder order ids.
type SampleRebinder interface {
	RebindSampleOrder(ctx context.Context, placeholderID, realID id.OrderID) error
}

// Scheduler runs the reconciliation sweep on a fixed interval.
type Scheduler struct {
	orders    order.Store
	samples   SampleRebinder
	prober    OrderProber
	publisher EventPublisher
	topic     string
	cfg       config.Scheduler
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func NewScheduler(orders order.Store, samples SampleRebinder, prober OrderProber,
	publisher EventPublisher, topic string, cfg config.Scheduler, m *metrics.Metrics, log *slog.Logger) *Scheduler {
	return &Scheduler{
		orders:    orders,
		samples:   samples,
		prober:    prober,
		publisher: publisher,
		topic:     topic,
		cfg:       cfg,
		metrics:   m,
		log:       log,
	}
}

// Run sweeps until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.log.ErrorContext(ctx, "reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep performs one reconciliation pass: request republish for stuck orders,
// then rebind placeholders. Exported so operations tooling and tests can
// trigger a pass directly.
func (s *Scheduler) Sweep(ctx context.Context) error {
	if err := s.requestResync(ctx); err != nil {
		return err
	}
	s.rebindPlaceholders(ctx)
	return nil
}

func (s *Scheduler) requestResync(ctx context.Context) error {
	now := requestcontext.Now(ctx)
	cutoff := now.Add(-s.cfg.StuckTimeout)

	stuck, err := s.orders.ListStuck(ctx, cutoff, s.cfg.BatchLimit)
	if err != nil {
		return fmt.Errorf("list stuck orders: %w", err)
	}
	if len(stuck) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(stuck))
	barcodes := make([]string, 0, len(stuck))
	for _, rec := range stuck {
		if rec.Barcode == "" || seen[rec.Barcode] {
			continue
		}
		seen[rec.Barcode] = true
		barcodes = append(barcodes, rec.Barcode)
	}

	value, err := json.Marshal(Event{
		RequestedBy: requestedBy,
		Barcodes:    barcodes,
		RequestedAt: now,
	})
	if err != nil {
		return fmt.Errorf("encode resync event: %w", err)
	}
	if err := s.publisher.Publish(ctx, s.topic, []byte(requestedBy), value); err != nil {
		return fmt.Errorf("publish resync event: %w", err)
	}

	s.metrics.IncrementBatch(len(barcodes))
	s.log.InfoContext(ctx, "resync requested", "barcodes", len(barcodes), "stuck_orders", len(stuck))
	return nil
}

// rebindPlaceholders re-attempts order-id binding for orders auto-created
// during an order-service outage. Probing goes through the circuit breaker's
// probe path, so successful passes also close an open circuit.
func (s *Scheduler) rebindPlaceholders(ctx context.Context) {
	placeholders, err := s.orders.ListAutoCreated(ctx, s.cfg.BatchLimit)
	if err != nil {
		s.log.ErrorContext(ctx, "list placeholder orders", "error", err)
		return
	}

	for _, rec := range placeholders {
		resolved, err := s.prober.Probe(ctx, rec.Barcode)
		if err != nil {
			if errors.Is(err, sentinel.ErrUnavailable) {
				// Still down; the rest of the batch would fail the same way.
				return
			}
			s.log.WarnContext(ctx, "probe order for placeholder",
				"order_id", rec.ID, "barcode", rec.Barcode, "error", err)
			continue
		}
		if err := s.orders.Rebind(ctx, rec.ID, resolved.ID); err != nil {
			s.log.ErrorContext(ctx, "rebind placeholder order",
				"order_id", rec.ID, "real_id", resolved.ID, "error", err)
			continue
		}
		if err := s.samples.RebindSampleOrder(ctx, rec.ID, resolved.ID); err != nil {
			s.log.ErrorContext(ctx, "rebind placeholder samples",
				"order_id", rec.ID, "real_id", resolved.ID, "error", err)
			continue
		}
		s.metrics.IncrementRebind()
		s.log.InfoContext(ctx, "placeholder order rebound",
			"placeholder_id", rec.ID, "order_id", resolved.ID, "barcode", rec.Barcode)
	}
}
