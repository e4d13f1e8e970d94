package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"labflow/internal/platform/metrics"
	"labflow/internal/platform/middleware"
	"labflow/internal/transport/http/shared"
	"labflow/internal/workflow"
	dErrors "labflow/pkg/domain-errors"
	id "labflow/pkg/domain"
)

// Service defines the interface for workflow operations.
type Service interface {
	InitiateWorkflow(ctx context.Context, instrumentID id.InstrumentID, cassetteID *id.CassetteID, submissions []workflow.Submission) (workflow.Projection, error)
	ProcessNextCassette(ctx context.Context, instrumentID id.InstrumentID) (workflow.Projection, bool, error)
	GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (workflow.Projection, error)
	GetWorkflowSamples(ctx context.Context, workflowID id.WorkflowID) ([]workflow.Sample, error)
}

// Handler handles workflow endpoints.
type Handler struct {
	logger       *slog.Logger
	workflows    Service
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new workflow Handler.
func New(workflows Service, logger *slog.Logger, metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		workflows:    workflows,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the workflow routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/v1/workflows", h.handleInitiate)
		r.Post("/v1/instruments/{instrumentID}/process-next", h.handleProcessNext)
		r.Get("/v1/workflows/{workflowID}", h.handleGetWorkflow)
		r.Get("/v1/workflows/{workflowID}/samples", h.handleGetSamples)
	})
}

type sampleRequest struct {
	Barcode string `json:"barcode"`
	OrderID string `json:"orderId,omitempty"`
}

type initiateRequest struct {
	InstrumentID string          `json:"instrumentId"`
	CassetteID   string          `json:"cassetteId,omitempty"`
	Samples      []sampleRequest `json:"samples"`
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	instrumentID, err := id.ParseInstrumentID(req.InstrumentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var cassetteID *id.CassetteID
	if req.CassetteID != "" {
		cid, err := id.ParseCassetteID(req.CassetteID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		cassetteID = &cid
	}
	submissions := make([]workflow.Submission, len(req.Samples))
	for i, sample := range req.Samples {
		submissions[i] = workflow.Submission{Barcode: sample.Barcode}
		if sample.OrderID != "" {
			oid, err := id.ParseOrderID(sample.OrderID)
			if err != nil {
				shared.WriteError(w, err)
				return
			}
			submissions[i].OrderID = &oid
		}
	}

	proj, err := h.workflows.InitiateWorkflow(ctx, instrumentID, cassetteID, submissions)
	if err != nil {
		h.logError(ctx, "initiate workflow", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, proj)
}

func (h *Handler) handleProcessNext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instrumentID, err := id.ParseInstrumentID(chi.URLParam(r, "instrumentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	proj, processed, err := h.workflows.ProcessNextCassette(ctx, instrumentID)
	if err != nil {
		h.logError(ctx, "process next cassette", err)
		shared.WriteError(w, err)
		return
	}
	if !processed {
		// Empty queue is a defined no-op signal.
		shared.WriteJSON(w, http.StatusOK, map[string]any{"processed": false})
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"processed": true, "workflow": proj})
}

func (h *Handler) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, err := id.ParseWorkflowID(chi.URLParam(r, "workflowID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	proj, err := h.workflows.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, proj)
}

type sampleResponse struct {
	ID         id.SampleID           `json:"id"`
	Barcode    string                `json:"barcode"`
	OrderID    *id.OrderID           `json:"orderId,omitempty"`
	Status     workflow.SampleStatus `json:"status"`
	AutoOrder  bool                  `json:"orderAutoCreated"`
	SkipReason string                `json:"skipReason,omitempty"`
	Position   int                   `json:"position"`
}

func (h *Handler) handleGetSamples(w http.ResponseWriter, r *http.Request) {
	workflowID, err := id.ParseWorkflowID(chi.URLParam(r, "workflowID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	samples, err := h.workflows.GetWorkflowSamples(r.Context(), workflowID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]sampleResponse, len(samples))
	for i, sample := range samples {
		out[i] = sampleResponse{
			ID:         sample.ID,
			Barcode:    sample.Barcode,
			OrderID:    sample.OrderID,
			Status:     sample.Status,
			AutoOrder:  sample.OrderAutoCreated,
			SkipReason: sample.SkipReason,
			Position:   sample.Position,
		}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"samples": out})
}

func (h *Handler) logError(ctx context.Context, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed", "error", err)
	} else {
		h.logger.WarnContext(ctx, op+" rejected", "error", err)
	}
}
