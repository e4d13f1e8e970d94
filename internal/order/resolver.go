package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"labflow/pkg/platform/circuit"
	"labflow/pkg/platform/sentinel"
)

// Resolver wraps the order service client with a circuit breaker. While the
// circuit is open every workflow-path lookup fails fast with
// sentinel.ErrUnavailable, so initiation falls straight through to its
// degraded path instead of waiting out timeouts sample by sample. The resync
// scheduler keeps probing through the open circuit until it closes again.
type Resolver struct {
	client  Client
	breaker *circuit.Breaker
	log     *slog.Logger
}

func NewResolver(client Client, breaker *circuit.Breaker, log *slog.Logger) *Resolver {
	return &Resolver{client: client, breaker: breaker, log: log}
}

// Resolve looks up the order for a barcode, failing fast while the circuit
// is open.
func (r *Resolver) Resolve(ctx context.Context, barcode string) (TestOrder, error) {
	if r.breaker.IsOpen() {
		return TestOrder{}, fmt.Errorf("order service circuit open: %w", sentinel.ErrUnavailable)
	}
	return r.lookup(ctx, barcode)
}

// Probe performs a lookup regardless of circuit state. Successful probes
// against an open circuit eventually close it.
func (r *Resolver) Probe(ctx context.Context, barcode string) (TestOrder, error) {
	return r.lookup(ctx, barcode)
}

func (r *Resolver) lookup(ctx context.Context, barcode string) (TestOrder, error) {
	order, err := r.client.CreateOrGetOrder(ctx, barcode)
	if err != nil {
		if errors.Is(err, sentinel.ErrUnavailable) {
			if _, change := r.breaker.RecordFailure(); change.Opened {
				r.log.Warn("order service circuit opened", "breaker", r.breaker.Name())
			}
			return TestOrder{}, err
		}
		// Not-found is a healthy answer from the service.
		r.recordSuccess()
		return TestOrder{}, err
	}
	r.recordSuccess()
	return order, nil
}

func (r *Resolver) recordSuccess() {
	if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.log.Info("order service circuit closed", "breaker", r.breaker.Name())
	}
}
