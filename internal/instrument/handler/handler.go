package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"labflow/internal/cassette"
	"labflow/internal/instrument"
	"labflow/internal/platform/metrics"
	"labflow/internal/platform/middleware"
	"labflow/internal/transport/http/shared"
	dErrors "labflow/pkg/domain-errors"
	id "labflow/pkg/domain"
)

// InstrumentService defines the interface for instrument operations.
type InstrumentService interface {
	Register(ctx context.Context, name string) (instrument.Instrument, error)
	Get(ctx context.Context, instrumentID id.InstrumentID) (instrument.Instrument, error)
	SetMode(ctx context.Context, instrumentID id.InstrumentID, mode instrument.Mode, reason string) (instrument.Instrument, error)
}

// CassetteService defines the interface for cassette intake.
type CassetteService interface {
	Enqueue(ctx context.Context, instrumentID id.InstrumentID, samples []cassette.SampleSpec) (cassette.Cassette, error)
}

// Handler handles instrument and cassette-intake endpoints.
type Handler struct {
	logger       *slog.Logger
	instruments  InstrumentService
	cassettes    CassetteService
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

// New creates a new instrument Handler.
func New(instruments InstrumentService, cassettes CassetteService, logger *slog.Logger,
	metrics *metrics.Metrics, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		instruments:  instruments,
		cassettes:    cassettes,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the instrument routes with the chi router.
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
		r.Post("/v1/instruments", h.handleRegister)
		r.Get("/v1/instruments/{instrumentID}", h.handleGet)
		r.Put("/v1/instruments/{instrumentID}/mode", h.handleSetMode)
		r.Post("/v1/instruments/{instrumentID}/cassettes", h.handleEnqueueCassette)
	})
}

type registerRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	inst, err := h.instruments.Register(r.Context(), req.Name)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, instrumentResponse(inst))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	instrumentID, err := id.ParseInstrumentID(chi.URLParam(r, "instrumentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	inst, err := h.instruments.Get(r.Context(), instrumentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, instrumentResponse(inst))
}

type setModeRequest struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason"`
}

func (h *Handler) handleSetMode(w http.ResponseWriter, r *http.Request) {
	instrumentID, err := id.ParseInstrumentID(chi.URLParam(r, "instrumentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	inst, err := h.instruments.SetMode(r.Context(), instrumentID, instrument.Mode(req.Mode), req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, instrumentResponse(inst))
}

type enqueueRequest struct {
	Samples []struct {
		Barcode string `json:"barcode"`
		OrderID string `json:"orderId,omitempty"`
	} `json:"samples"`
}

func (h *Handler) handleEnqueueCassette(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instrumentID, err := id.ParseInstrumentID(chi.URLParam(r, "instrumentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	specs := make([]cassette.SampleSpec, len(req.Samples))
	for i, sample := range req.Samples {
		specs[i] = cassette.SampleSpec{Barcode: sample.Barcode}
		if sample.OrderID != "" {
			oid, err := id.ParseOrderID(sample.OrderID)
			if err != nil {
				shared.WriteError(w, err)
				return
			}
			specs[i].OrderID = &oid
		}
	}

	c, err := h.cassettes.Enqueue(ctx, instrumentID, specs)
	if err != nil {
		h.logger.WarnContext(ctx, "enqueue cassette rejected", "instrument_id", instrumentID, "error", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"id":            c.ID,
		"instrumentId":  c.InstrumentID,
		"queuePosition": c.QueuePosition,
		"samples":       len(c.Samples),
	})
}

func instrumentResponse(inst instrument.Instrument) map[string]any {
	return map[string]any{
		"id":         inst.ID,
		"name":       inst.Name,
		"mode":       inst.Mode,
		"status":     inst.Status,
		"modeReason": inst.ModeReason,
	}
}
