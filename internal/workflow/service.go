package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"labflow/internal/cassette"
	"labflow/internal/instrument"
	"labflow/internal/notify"
	"labflow/internal/order"
	"labflow/internal/workflow/metrics"
	domainerrors "labflow/pkg/domain-errors"
	id "labflow/pkg/domain"
	"labflow/pkg/platform/sentinel"
	"labflow/pkg/requestcontext"
)

// InstrumentStore is the slice of the instrument store the orchestrator needs.
type InstrumentStore interface {
	FindByID(ctx context.Context, instrumentID id.InstrumentID) (instrument.Instrument, error)
	Claim(ctx context.Context, instrumentID id.InstrumentID) error
	Release(ctx context.Context, instrumentID id.InstrumentID, to instrument.Status) error
}

// CassetteQueue is the take side of the cassette queue.
type CassetteQueue interface {
	TakeNext(ctx context.Context, instrumentID id.InstrumentID) (cassette.Cassette, error)
}

// ReagentGate answers whether an instrument has sufficient reagents to run.
type ReagentGate interface {
	SufficientFor(ctx context.Context, instrumentID id.InstrumentID) (bool, error)
}

// BarcodeValidator checks sample barcode format.
type BarcodeValidator interface {
	IsValid(code string) bool
}

// OrderResolver resolves or creates the upstream test order for a barcode.
// Resolve returns sentinel.ErrUnavailable when the order service cannot be
// reached (including while its circuit is open).
type OrderResolver interface {
	Resolve(ctx context.Context, barcode string) (order.TestOrder, error)
}

// OrderRecords is the slice of the local order projection store the
// orchestrator writes.
type OrderRecords interface {
	Save(ctx context.Context, rec order.Record) error
	MarkResultReceived(ctx context.Context, orderID id.OrderID, at time.Time) error
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Workflows        Store
	Instruments      InstrumentStore
	Queue            CassetteQueue
	Gate             ReagentGate
	Barcodes         BarcodeValidator
	Orders           OrderResolver
	OrderRecords     OrderRecords
	Notifier         notify.Notifier
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
	AutoCreateOrders bool
}

// Service drives the sample-analysis workflow state machine. Initiation runs
// synchronously within the calling request; collaborator failures are folded
// into workflow and sample state, never retried inline.
type Service struct {
	workflows        Store
	instruments      InstrumentStore
	queue            CassetteQueue
	gate             ReagentGate
	barcodes         BarcodeValidator
	orders           OrderResolver
	orderRecords     OrderRecords
	notifier         notify.Notifier
	metrics          *metrics.Metrics
	log              *slog.Logger
	tracer           trace.Tracer
	autoCreateOrders bool
}

func NewService(d Deps) *Service {
	return &Service{
		workflows:        d.Workflows,
		instruments:      d.Instruments,
		queue:            d.Queue,
		gate:             d.Gate,
		barcodes:         d.Barcodes,
		orders:           d.Orders,
		orderRecords:     d.OrderRecords,
		notifier:         d.Notifier,
		metrics:          d.Metrics,
		log:              d.Logger,
		tracer:           otel.Tracer("labflow/internal/workflow"),
		autoCreateOrders: d.AutoCreateOrders,
	}
}

// InitiateWorkflow validates preconditions and drives a new workflow to a
// defined state: RUNNING, HALTED or FAILED. Pre-mutation failures (unknown
// instrument, instrument busy) surface as errors; everything after the
// workflow row exists ends in a terminal-or-running workflow, never an
// ambiguous one.
func (s *Service) InitiateWorkflow(ctx context.Context, instrumentID id.InstrumentID, cassetteID *id.CassetteID, submissions []Submission) (Projection, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "workflow.initiate")
	defer span.End()

	if len(submissions) == 0 {
		return Projection{}, domainerrors.New(domainerrors.CodeBadRequest, "at least one sample is required")
	}

	inst, err := s.instruments.FindByID(ctx, instrumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Projection{}, domainerrors.New(domainerrors.CodeNotFound, "instrument not found: "+instrumentID.String())
		}
		return Projection{}, domainerrors.New(domainerrors.CodeInternal, "load instrument: "+err.Error())
	}
	if inst.Mode != instrument.ModeReady {
		return Projection{}, domainerrors.New(domainerrors.CodeInvalidState,
			fmt.Sprintf("instrument %s mode is %s, workflows require READY", instrumentID, inst.Mode))
	}
	if inst.Status != instrument.StatusAvailable {
		return Projection{}, domainerrors.New(domainerrors.CodeInvalidState,
			fmt.Sprintf("instrument %s is %s, another workflow may be active", instrumentID, inst.Status))
	}

	now := requestcontext.Now(ctx)

	sufficient, err := s.gate.SufficientFor(ctx, instrumentID)
	if err != nil {
		return Projection{}, domainerrors.New(domainerrors.CodeInternal, "reagent check: "+err.Error())
	}

	wf := Workflow{
		ID:                    id.NewWorkflowID(),
		InstrumentID:          instrumentID,
		CassetteID:            cassetteID,
		Status:                StatusValidating,
		ReagentCheckPassed:    sufficient,
		OrderServiceAvailable: true,
		StartedAt:             now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	samples := buildSamples(wf, submissions, now)

	if !sufficient {
		// Hard stop. The workflow halts before any sample is validated and
		// the instrument is left untouched.
		wf.Status = StatusHalted
		wf.ErrorMessage = "insufficient reagents on instrument " + instrumentID.String()
		if err := s.persistWorkflow(ctx, wf, samples); err != nil {
			return Projection{}, err
		}
		s.notifier.ReagentShortage(ctx, notify.WorkflowEvent{
			WorkflowID:   wf.ID,
			InstrumentID: instrumentID,
			Message:      wf.ErrorMessage,
			OccurredAt:   now,
		})
		s.metrics.IncrementInitiation(string(StatusHalted))
		s.log.WarnContext(ctx, "workflow halted on reagent gate",
			"workflow_id", wf.ID, "instrument_id", instrumentID)
		return projectionOf(wf, samples), nil
	}

	if err := s.persistWorkflow(ctx, wf, samples); err != nil {
		return Projection{}, err
	}

	validated := 0
	for i := range samples {
		s.validateSample(ctx, &wf, &samples[i], now)
		if samples[i].Status == SampleValidated {
			validated++
			s.metrics.IncrementSample("validated")
		} else {
			s.metrics.IncrementSample("skipped")
		}
		if err := s.workflows.UpdateSample(ctx, samples[i]); err != nil {
			return Projection{}, domainerrors.New(domainerrors.CodeInternal, "update sample: "+err.Error())
		}
	}

	switch {
	case validated == 0:
		wf.Status = StatusFailed
		wf.ErrorMessage = fmt.Sprintf("no usable samples: all %d were skipped", len(samples))
	default:
		if err := s.instruments.Claim(ctx, instrumentID); err != nil {
			// Lost the claim race after the precheck. The workflow fails,
			// the winner keeps the instrument.
			wf.Status = StatusFailed
			wf.ErrorMessage = "instrument " + instrumentID.String() + " was claimed concurrently"
			s.log.WarnContext(ctx, "instrument claim lost", "workflow_id", wf.ID,
				"instrument_id", instrumentID, "error", err)
		} else {
			wf.Status = StatusRunning
		}
	}
	wf.UpdatedAt = now
	if err := s.workflows.UpdateWorkflow(ctx, wf); err != nil {
		return Projection{}, domainerrors.New(domainerrors.CodeInternal, "update workflow: "+err.Error())
	}

	if wf.Status == StatusRunning {
		s.notifier.WorkflowStarted(ctx, notify.WorkflowEvent{
			WorkflowID:   wf.ID,
			InstrumentID: instrumentID,
			OccurredAt:   now,
		})
	}
	s.metrics.IncrementInitiation(string(wf.Status))
	s.metrics.ObserveInitiateLatency(time.Since(start))
	s.log.InfoContext(ctx, "workflow initiated",
		"workflow_id", wf.ID,
		"instrument_id", instrumentID,
		"status", wf.Status,
		"samples", len(samples),
		"validated", validated,
	)
	return projectionOf(wf, samples), nil
}

// ProcessNextCassette atomically takes the head of the instrument's queue and
// initiates a workflow over its samples. An empty queue is a defined no-op
// signal: processed is false and there is no error.
func (s *Service) ProcessNextCassette(ctx context.Context, instrumentID id.InstrumentID) (Projection, bool, error) {
	ctx, span := s.tracer.Start(ctx, "workflow.process_next_cassette")
	defer span.End()

	// Precheck before dequeuing so a busy instrument does not consume a
	// cassette it cannot run.
	inst, err := s.instruments.FindByID(ctx, instrumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Projection{}, false, domainerrors.New(domainerrors.CodeNotFound, "instrument not found: "+instrumentID.String())
		}
		return Projection{}, false, domainerrors.New(domainerrors.CodeInternal, "load instrument: "+err.Error())
	}
	if inst.Status != instrument.StatusAvailable {
		return Projection{}, false, domainerrors.New(domainerrors.CodeInvalidState,
			fmt.Sprintf("instrument %s is %s, another workflow may be active", instrumentID, inst.Status))
	}

	c, err := s.queue.TakeNext(ctx, instrumentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.metrics.IncrementCassetteTake("empty")
			return Projection{}, false, nil
		}
		return Projection{}, false, domainerrors.New(domainerrors.CodeInternal, "take next cassette: "+err.Error())
	}
	s.metrics.IncrementCassetteTake("processed")

	submissions := make([]Submission, len(c.Samples))
	for i, spec := range c.Samples {
		submissions[i] = Submission{Barcode: spec.Barcode, OrderID: spec.OrderID}
	}
	cid := c.ID
	proj, err := s.InitiateWorkflow(ctx, instrumentID, &cid, submissions)
	if err != nil {
		return Projection{}, false, err
	}
	return proj, true, nil
}

// GetWorkflow returns the workflow projection.
func (s *Service) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (Projection, error) {
	wf, err := s.workflows.FindWorkflowByID(ctx, workflowID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Projection{}, domainerrors.New(domainerrors.CodeNotFound, "workflow not found: "+workflowID.String())
		}
		return Projection{}, domainerrors.New(domainerrors.CodeInternal, "load workflow: "+err.Error())
	}
	samples, err := s.workflows.ListSamples(ctx, workflowID)
	if err != nil {
		return Projection{}, domainerrors.New(domainerrors.CodeInternal, "load samples: "+err.Error())
	}
	return projectionOf(wf, samples), nil
}

// GetWorkflowSamples returns the workflow's samples in submission order.
func (s *Service) GetWorkflowSamples(ctx context.Context, workflowID id.WorkflowID) ([]Sample, error) {
	if _, err := s.workflows.FindWorkflowByID(ctx, workflowID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "workflow not found: "+workflowID.String())
		}
		return nil, domainerrors.New(domainerrors.CodeInternal, "load workflow: "+err.Error())
	}
	samples, err := s.workflows.ListSamples(ctx, workflowID)
	if err != nil {
		return nil, domainerrors.New(domainerrors.CodeInternal, "load samples: "+err.Error())
	}
	return samples, nil
}

// RecordSampleResult advances the in-flight sample carrying the barcode to
// COMPLETED. When the last sample of a RUNNING workflow turns terminal the
// workflow completes, the instrument is released, and the completion
// notification fires. Called by the result ingestion listener; returns
// sentinel.ErrNotFound when no sample is awaiting the barcode.
func (s *Service) RecordSampleResult(ctx context.Context, barcode string, receivedAt time.Time) error {
	sample, err := s.workflows.FindActiveSampleByBarcode(ctx, barcode)
	if err != nil {
		return err
	}
	if !sample.Status.CanAdvanceTo(SampleCompleted) {
		return fmt.Errorf("sample %s cannot advance from %s: %w", sample.ID, sample.Status, sentinel.ErrInvalidState)
	}
	sample.Status = SampleCompleted
	sample.UpdatedAt = receivedAt
	if err := s.workflows.UpdateSample(ctx, sample); err != nil {
		return fmt.Errorf("complete sample %s: %w", sample.ID, err)
	}
	if sample.OrderID != nil {
		if err := s.orderRecords.MarkResultReceived(ctx, *sample.OrderID, receivedAt); err != nil {
			s.log.WarnContext(ctx, "mark order result received",
				"order_id", *sample.OrderID, "barcode", barcode, "error", err)
		}
	}

	wf, err := s.workflows.FindWorkflowByID(ctx, sample.WorkflowID)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", sample.WorkflowID, err)
	}
	if wf.Status != StatusRunning {
		return nil
	}
	samples, err := s.workflows.ListSamples(ctx, wf.ID)
	if err != nil {
		return fmt.Errorf("list samples for %s: %w", wf.ID, err)
	}
	for _, sm := range samples {
		if !sm.Status.IsTerminal() {
			return nil
		}
	}

	wf.Status = StatusCompleted
	wf.CompletedAt = &receivedAt
	wf.UpdatedAt = receivedAt
	if err := s.workflows.UpdateWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("complete workflow %s: %w", wf.ID, err)
	}
	if err := s.instruments.Release(ctx, wf.InstrumentID, instrument.StatusAvailable); err != nil {
		s.log.ErrorContext(ctx, "release instrument after completion",
			"workflow_id", wf.ID, "instrument_id", wf.InstrumentID, "error", err)
	}
	s.notifier.WorkflowCompleted(ctx, notify.WorkflowEvent{
		WorkflowID:   wf.ID,
		InstrumentID: wf.InstrumentID,
		OccurredAt:   receivedAt,
	})
	s.log.InfoContext(ctx, "workflow completed", "workflow_id", wf.ID, "instrument_id", wf.InstrumentID)
	return nil
}

func (s *Service) persistWorkflow(ctx context.Context, wf Workflow, samples []Sample) error {
	if err := s.workflows.SaveWorkflow(ctx, wf); err != nil {
		return domainerrors.New(domainerrors.CodeInternal, "save workflow: "+err.Error())
	}
	for _, sample := range samples {
		if err := s.workflows.SaveSample(ctx, sample); err != nil {
			return domainerrors.New(domainerrors.CodeInternal, "save sample: "+err.Error())
		}
	}
	return nil
}

// validateSample runs step five of initiation for one sample: barcode format,
// then order resolution with the configured degradation policy. Failures are
// folded into the sample, never returned.
func (s *Service) validateSample(ctx context.Context, wf *Workflow, sample *Sample, now time.Time) {
	sample.UpdatedAt = now

	if !s.barcodes.IsValid(sample.Barcode) {
		sample.Status = SampleSkipped
		sample.SkipReason = SkipReasonInvalidBarcode
		return
	}

	if sample.OrderID != nil {
		s.saveOrderRecord(ctx, order.Record{
			ID:        *sample.OrderID,
			Barcode:   sample.Barcode,
			Status:    order.StatusAwaitingResult,
			CreatedAt: now,
			UpdatedAt: now,
		})
		sample.Status = SampleValidated
		return
	}

	resolved, err := s.orders.Resolve(ctx, sample.Barcode)
	switch {
	case err == nil:
		oid := resolved.ID
		sample.OrderID = &oid
		sample.Status = SampleValidated
		s.saveOrderRecord(ctx, order.Record{
			ID:         resolved.ID,
			Barcode:    sample.Barcode,
			PatientRef: resolved.PatientRef,
			PanelCode:  resolved.PanelCode,
			Status:     order.StatusAwaitingResult,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	case errors.Is(err, sentinel.ErrUnavailable):
		wf.OrderServiceAvailable = false
		if !s.autoCreateOrders {
			sample.Status = SampleSkipped
			sample.SkipReason = SkipReasonOrderUnavailable
			return
		}
		oid := id.NewOrderID()
		sample.OrderID = &oid
		sample.OrderAutoCreated = true
		sample.Status = SampleValidated
		s.saveOrderRecord(ctx, order.Record{
			ID:          oid,
			Barcode:     sample.Barcode,
			Status:      order.StatusAwaitingResult,
			AutoCreated: true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	default:
		sample.Status = SampleSkipped
		sample.SkipReason = SkipReasonOrderResolveFailed + ": " + err.Error()
	}
}

func (s *Service) saveOrderRecord(ctx context.Context, rec order.Record) {
	if err := s.orderRecords.Save(ctx, rec); err != nil {
		s.log.ErrorContext(ctx, "save order record", "order_id", rec.ID, "barcode", rec.Barcode, "error", err)
	}
}

func buildSamples(wf Workflow, submissions []Submission, now time.Time) []Sample {
	samples := make([]Sample, len(submissions))
	for i, sub := range submissions {
		samples[i] = Sample{
			ID:           id.NewSampleID(),
			WorkflowID:   wf.ID,
			InstrumentID: wf.InstrumentID,
			Barcode:      sub.Barcode,
			OrderID:      sub.OrderID,
			Status:       SamplePending,
			Position:     i,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}
	return samples
}

func projectionOf(wf Workflow, samples []Sample) Projection {
	sampleIDs := make([]id.SampleID, len(samples))
	for i, sample := range samples {
		sampleIDs[i] = sample.ID
	}
	return Projection{
		ID:                    wf.ID,
		InstrumentID:          wf.InstrumentID,
		CassetteID:            wf.CassetteID,
		Status:                wf.Status,
		SampleIDs:             sampleIDs,
		ReagentCheckPassed:    wf.ReagentCheckPassed,
		OrderServiceAvailable: wf.OrderServiceAvailable,
		ErrorMessage:          wf.ErrorMessage,
		StartedAt:             wf.StartedAt,
		CompletedAt:           wf.CompletedAt,
	}
}
