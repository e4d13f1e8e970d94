package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"labflow/internal/cassette"
	"labflow/internal/instrument"
	"labflow/internal/jwttoken"
	id "labflow/pkg/domain"
	dErrors "labflow/pkg/domain-errors"
	"labflow/pkg/testutil"
)

type stubInstrumentService struct {
	register func(ctx context.Context, name string) (instrument.Instrument, error)
	get      func(ctx context.Context, instrumentID id.InstrumentID) (instrument.Instrument, error)
	setMode  func(ctx context.Context, instrumentID id.InstrumentID, mode instrument.Mode, reason string) (instrument.Instrument, error)
}

func (s *stubInstrumentService) Register(ctx context.Context, name string) (instrument.Instrument, error) {
	return s.register(ctx, name)
}

func (s *stubInstrumentService) Get(ctx context.Context, instrumentID id.InstrumentID) (instrument.Instrument, error) {
	return s.get(ctx, instrumentID)
}

func (s *stubInstrumentService) SetMode(ctx context.Context, instrumentID id.InstrumentID, mode instrument.Mode, reason string) (instrument.Instrument, error) {
	return s.setMode(ctx, instrumentID, mode, reason)
}

type stubCassetteService struct {
	enqueue func(ctx context.Context, instrumentID id.InstrumentID, samples []cassette.SampleSpec) (cassette.Cassette, error)
}

func (s *stubCassetteService) Enqueue(ctx context.Context, instrumentID id.InstrumentID, samples []cassette.SampleSpec) (cassette.Cassette, error) {
	return s.enqueue(ctx, instrumentID, samples)
}

type InstrumentHandlerSuite struct {
	suite.Suite

	jwt   *jwttoken.JWTService
	token string
}

func TestInstrumentHandlerSuite(t *testing.T) {
	suite.Run(t, new(InstrumentHandlerSuite))
}

func (s *InstrumentHandlerSuite) SetupSuite() {
	s.jwt = jwttoken.NewJWTService("test-signing-key")
	token, err := s.jwt.GenerateToken("operator-1", "lab-console", time.Hour)
	s.Require().NoError(err)
	s.token = token
}

func (s *InstrumentHandlerSuite) newRouter(instruments *stubInstrumentService, cassettes *stubCassetteService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(instruments, cassettes, logger, nil, s.jwt)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *InstrumentHandlerSuite) authorize(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+s.token)
	return req
}

func (s *InstrumentHandlerSuite) TestRegisterInstrument() {
	instrumentID := id.NewInstrumentID()
	svc := &stubInstrumentService{
		register: func(_ context.Context, name string) (instrument.Instrument, error) {
			s.Equal("hematology-01", name)
			return instrument.Instrument{
				ID:     instrumentID,
				Name:   name,
				Mode:   instrument.ModeReady,
				Status: instrument.StatusAvailable,
			}, nil
		},
	}
	router := s.newRouter(svc, &stubCassetteService{})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/instruments", map[string]any{"name": "hematology-01"})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(instrumentID.String(), (*resp)["id"])
	s.Equal(string(instrument.ModeReady), (*resp)["mode"])
	s.Equal(string(instrument.StatusAvailable), (*resp)["status"])
}

func (s *InstrumentHandlerSuite) TestRegisterRequiresAuth() {
	svc := &stubInstrumentService{
		register: func(context.Context, string) (instrument.Instrument, error) {
			s.FailNow("service must not be called without a token")
			return instrument.Instrument{}, nil
		},
	}
	router := s.newRouter(svc, &stubCassetteService{})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/instruments", map[string]any{"name": "hematology-01"})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *InstrumentHandlerSuite) TestGetInstrumentNotFound() {
	svc := &stubInstrumentService{
		get: func(_ context.Context, gotID id.InstrumentID) (instrument.Instrument, error) {
			return instrument.Instrument{}, dErrors.New(dErrors.CodeNotFound, "instrument not found: "+gotID.String())
		},
	}
	router := s.newRouter(svc, &stubCassetteService{})

	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/instruments/"+id.NewInstrumentID().String())
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *InstrumentHandlerSuite) TestSetMode() {
	instrumentID := id.NewInstrumentID()
	svc := &stubInstrumentService{
		setMode: func(_ context.Context, gotID id.InstrumentID, mode instrument.Mode, reason string) (instrument.Instrument, error) {
			s.Equal(instrumentID, gotID)
			s.Equal(instrument.ModeMaintenance, mode)
			s.Equal("quarterly calibration", reason)
			return instrument.Instrument{
				ID:         gotID,
				Name:       "hematology-01",
				Mode:       mode,
				Status:     instrument.StatusAvailable,
				ModeReason: reason,
			}, nil
		},
	}
	router := s.newRouter(svc, &stubCassetteService{})

	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/instruments/"+instrumentID.String()+"/mode", map[string]any{
		"mode":   string(instrument.ModeMaintenance),
		"reason": "quarterly calibration",
	})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(string(instrument.ModeMaintenance), (*resp)["mode"])
	s.Equal("quarterly calibration", (*resp)["modeReason"])
}

func (s *InstrumentHandlerSuite) TestSetModeRejectsUnknownMode() {
	svc := &stubInstrumentService{
		setMode: func(context.Context, id.InstrumentID, instrument.Mode, string) (instrument.Instrument, error) {
			return instrument.Instrument{}, dErrors.New(dErrors.CodeBadRequest, "invalid instrument mode")
		},
	}
	router := s.newRouter(svc, &stubCassetteService{})

	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/instruments/"+id.NewInstrumentID().String()+"/mode", map[string]any{
		"mode": "TURBO",
	})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *InstrumentHandlerSuite) TestEnqueueCassette() {
	instrumentID := id.NewInstrumentID()
	cassetteID := id.NewCassetteID()
	orderID := id.NewOrderID()
	cassettes := &stubCassetteService{
		enqueue: func(_ context.Context, gotID id.InstrumentID, samples []cassette.SampleSpec) (cassette.Cassette, error) {
			s.Equal(instrumentID, gotID)
			s.Require().Len(samples, 2)
			s.Equal("BC00000001", samples[0].Barcode)
			s.Require().NotNil(samples[1].OrderID)
			s.Equal(orderID, *samples[1].OrderID)
			return cassette.Cassette{
				ID:            cassetteID,
				InstrumentID:  gotID,
				QueuePosition: 3,
				Samples:       samples,
			}, nil
		},
	}
	router := s.newRouter(&stubInstrumentService{}, cassettes)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/instruments/"+instrumentID.String()+"/cassettes", map[string]any{
		"samples": []map[string]any{
			{"barcode": "BC00000001"},
			{"barcode": "BC00000002", "orderId": orderID.String()},
		},
	})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(cassetteID.String(), (*resp)["id"])
	s.Equal(float64(3), (*resp)["queuePosition"])
	s.Equal(float64(2), (*resp)["samples"])
}

func (s *InstrumentHandlerSuite) TestEnqueueCassetteEmpty() {
	cassettes := &stubCassetteService{
		enqueue: func(context.Context, id.InstrumentID, []cassette.SampleSpec) (cassette.Cassette, error) {
			return cassette.Cassette{}, dErrors.New(dErrors.CodeBadRequest, "cassette requires at least one sample")
		},
	}
	router := s.newRouter(&stubInstrumentService{}, cassettes)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/instruments/"+id.NewInstrumentID().String()+"/cassettes", map[string]any{
		"samples": []map[string]any{},
	})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}
