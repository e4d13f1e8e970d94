package resync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"labflow/internal/order"
	"labflow/internal/platform/config"
	"labflow/internal/workflow"
	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
	"labflow/pkg/requestcontext"
)

type capturingPublisher struct {
	topics []string
	keys   [][]byte
	values [][]byte
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

type stubProber struct {
	probe func(ctx context.Context, barcode string) (order.TestOrder, error)
}

func (p *stubProber) Probe(ctx context.Context, barcode string) (order.TestOrder, error) {
	return p.probe(ctx, barcode)
}

type SchedulerSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	orders    *order.InMemoryStore
	samples   *workflow.InMemoryStore
	prober    *stubProber
	publisher *capturingPublisher
	scheduler *Scheduler
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.orders = order.NewInMemoryStore()
	s.samples = workflow.NewInMemoryStore()
	s.prober = &stubProber{probe: func(_ context.Context, barcode string) (order.TestOrder, error) {
		return order.TestOrder{ID: id.NewOrderID(), Barcode: barcode}, nil
	}}
	s.publisher = &capturingPublisher{}
	s.scheduler = NewScheduler(s.orders, s.samples, s.prober, s.publisher,
		"lab.results.resync",
		config.Scheduler{Interval: time.Minute, StuckTimeout: 30 * time.Minute, BatchLimit: 100},
		nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *SchedulerSuite) saveOrder(rec order.Record) {
	s.Require().NoError(s.orders.Save(s.ctx, rec))
}

func (s *SchedulerSuite) TestSweep_ResyncRequests() {
	s.Run("batches stuck barcodes into one event", func() {
		s.saveOrder(order.Record{ID: id.NewOrderID(), Barcode: "BC00000001",
			Status: order.StatusAwaitingResult, CreatedAt: s.now.Add(-2 * time.Hour)})
		s.saveOrder(order.Record{ID: id.NewOrderID(), Barcode: "BC00000002",
			Status: order.StatusAwaitingResult, CreatedAt: s.now.Add(-45 * time.Minute)})
		// Fresh order, not stuck yet.
		s.saveOrder(order.Record{ID: id.NewOrderID(), Barcode: "BC00000003",
			Status: order.StatusAwaitingResult, CreatedAt: s.now.Add(-5 * time.Minute)})
		// Already received, never resynced.
		s.saveOrder(order.Record{ID: id.NewOrderID(), Barcode: "BC00000004",
			Status: order.StatusResultReceived, CreatedAt: s.now.Add(-2 * time.Hour)})

		s.Require().NoError(s.scheduler.Sweep(s.ctx))

		s.Require().Len(s.publisher.values, 1, "one event per sweep, not one per order")
		s.Equal("lab.results.resync", s.publisher.topics[0])

		var event Event
		s.Require().NoError(json.Unmarshal(s.publisher.values[0], &event))
		s.Equal("labflow", event.RequestedBy)
		s.Equal([]string{"BC00000001", "BC00000002"}, event.Barcodes)
		s.Equal(s.now, event.RequestedAt)
	})

	s.Run("nothing stuck publishes nothing", func() {
		fresh := NewScheduler(order.NewInMemoryStore(), s.samples, s.prober, s.publisher,
			"lab.results.resync",
			config.Scheduler{Interval: time.Minute, StuckTimeout: 30 * time.Minute, BatchLimit: 100},
			nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
		before := len(s.publisher.values)
		s.Require().NoError(fresh.Sweep(s.ctx))
		s.Len(s.publisher.values, before)
	})
}

func (s *SchedulerSuite) TestSweep_RebindsPlaceholders() {
	placeholderID := id.NewOrderID()
	realID := id.NewOrderID()
	s.saveOrder(order.Record{ID: placeholderID, Barcode: "BC00000010",
		Status: order.StatusAwaitingResult, AutoCreated: true, CreatedAt: s.now.Add(-time.Minute)})

	pid := placeholderID
	s.Require().NoError(s.samples.SaveSample(s.ctx, workflow.Sample{
		ID: id.NewSampleID(), WorkflowID: id.NewWorkflowID(), Barcode: "BC00000010",
		OrderID: &pid, OrderAutoCreated: true, Status: workflow.SampleValidated, CreatedAt: s.now,
	}))

	s.prober.probe = func(_ context.Context, barcode string) (order.TestOrder, error) {
		return order.TestOrder{ID: realID, Barcode: barcode}, nil
	}

	s.Require().NoError(s.scheduler.Sweep(s.ctx))

	_, err := s.orders.FindByID(s.ctx, placeholderID)
	s.ErrorIs(err, sentinel.ErrNotFound, "placeholder id is gone")
	rebound, err := s.orders.FindByID(s.ctx, realID)
	s.Require().NoError(err)
	s.False(rebound.AutoCreated)
	s.Equal("BC00000010", rebound.Barcode)

	sample, err := s.samples.FindActiveSampleByBarcode(s.ctx, "BC00000010")
	s.Require().NoError(err)
	s.Require().NotNil(sample.OrderID)
	s.Equal(realID, *sample.OrderID)
	s.False(sample.OrderAutoCreated)
}

func (s *SchedulerSuite) TestSweep_OutageLeavesPlaceholders() {
	placeholderID := id.NewOrderID()
	s.saveOrder(order.Record{ID: placeholderID, Barcode: "BC00000011",
		Status: order.StatusAwaitingResult, AutoCreated: true, CreatedAt: s.now.Add(-time.Minute)})
	s.prober.probe = func(context.Context, string) (order.TestOrder, error) {
		return order.TestOrder{}, sentinel.ErrUnavailable
	}

	s.Require().NoError(s.scheduler.Sweep(s.ctx))

	rec, err := s.orders.FindByID(s.ctx, placeholderID)
	s.Require().NoError(err)
	s.True(rec.AutoCreated, "placeholder survives until the order service is back")
}
