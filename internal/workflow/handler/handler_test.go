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

	"labflow/internal/jwttoken"
	"labflow/internal/workflow"
	id "labflow/pkg/domain"
	dErrors "labflow/pkg/domain-errors"
	"labflow/pkg/testutil"
)

type stubService struct {
	initiate    func(ctx context.Context, instrumentID id.InstrumentID, cassetteID *id.CassetteID, submissions []workflow.Submission) (workflow.Projection, error)
	processNext func(ctx context.Context, instrumentID id.InstrumentID) (workflow.Projection, bool, error)
	get         func(ctx context.Context, workflowID id.WorkflowID) (workflow.Projection, error)
	getSamples  func(ctx context.Context, workflowID id.WorkflowID) ([]workflow.Sample, error)
}

func (s *stubService) InitiateWorkflow(ctx context.Context, instrumentID id.InstrumentID, cassetteID *id.CassetteID, submissions []workflow.Submission) (workflow.Projection, error) {
	return s.initiate(ctx, instrumentID, cassetteID, submissions)
}

func (s *stubService) ProcessNextCassette(ctx context.Context, instrumentID id.InstrumentID) (workflow.Projection, bool, error) {
	return s.processNext(ctx, instrumentID)
}

func (s *stubService) GetWorkflow(ctx context.Context, workflowID id.WorkflowID) (workflow.Projection, error) {
	return s.get(ctx, workflowID)
}

func (s *stubService) GetWorkflowSamples(ctx context.Context, workflowID id.WorkflowID) ([]workflow.Sample, error) {
	return s.getSamples(ctx, workflowID)
}

type WorkflowHandlerSuite struct {
	suite.Suite

	jwt   *jwttoken.JWTService
	token string
}

func TestWorkflowHandlerSuite(t *testing.T) {
	suite.Run(t, new(WorkflowHandlerSuite))
}

func (s *WorkflowHandlerSuite) SetupSuite() {
	s.jwt = jwttoken.NewJWTService("test-signing-key")
	token, err := s.jwt.GenerateToken("operator-1", "lab-console", time.Hour)
	s.Require().NoError(err)
	s.token = token
}

func (s *WorkflowHandlerSuite) newRouter(svc *stubService) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger, nil, s.jwt)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *WorkflowHandlerSuite) authorize(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+s.token)
	return req
}

func (s *WorkflowHandlerSuite) TestInitiateWorkflow() {
	instrumentID := id.NewInstrumentID()
	workflowID := id.NewWorkflowID()
	svc := &stubService{
		initiate: func(_ context.Context, gotInstrument id.InstrumentID, cassetteID *id.CassetteID, submissions []workflow.Submission) (workflow.Projection, error) {
			s.Equal(instrumentID, gotInstrument)
			s.Nil(cassetteID)
			s.Require().Len(submissions, 2)
			s.Equal("BC00000001", submissions[0].Barcode)
			s.NotNil(submissions[1].OrderID)
			return workflow.Projection{ID: workflowID, InstrumentID: gotInstrument, Status: workflow.StatusRunning}, nil
		},
	}
	router := s.newRouter(svc)

	orderID := id.NewOrderID()
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/workflows", map[string]any{
		"instrumentId": instrumentID.String(),
		"samples": []map[string]any{
			{"barcode": "BC00000001"},
			{"barcode": "BC00000002", "orderId": orderID.String()},
		},
	})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[workflow.Projection](s.T(), rr)
	s.Equal(workflowID, resp.ID)
	s.Equal(workflow.StatusRunning, resp.Status)
}

func (s *WorkflowHandlerSuite) TestInitiateWorkflowRequiresAuth() {
	svc := &stubService{
		initiate: func(context.Context, id.InstrumentID, *id.CassetteID, []workflow.Submission) (workflow.Projection, error) {
			s.FailNow("service must not be called without a token")
			return workflow.Projection{}, nil
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/workflows", map[string]any{
		"instrumentId": id.NewInstrumentID().String(),
	})
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *WorkflowHandlerSuite) TestInitiateWorkflowBadInstrumentID() {
	svc := &stubService{
		initiate: func(context.Context, id.InstrumentID, *id.CassetteID, []workflow.Submission) (workflow.Projection, error) {
			s.FailNow("service must not be called for malformed ids")
			return workflow.Projection{}, nil
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/workflows", map[string]any{
		"instrumentId": "not-a-uuid",
		"samples":      []map[string]any{{"barcode": "BC00000001"}},
	})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, string(dErrors.CodeBadRequest))
}

func (s *WorkflowHandlerSuite) TestInitiateWorkflowBusyInstrument() {
	svc := &stubService{
		initiate: func(context.Context, id.InstrumentID, *id.CassetteID, []workflow.Submission) (workflow.Projection, error) {
			return workflow.Projection{}, dErrors.New(dErrors.CodeInvalidState, "instrument is not available")
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/workflows", map[string]any{
		"instrumentId": id.NewInstrumentID().String(),
		"samples":      []map[string]any{{"barcode": "BC00000001"}},
	})
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, string(dErrors.CodeInvalidState))
}

func (s *WorkflowHandlerSuite) TestProcessNextCassette() {
	instrumentID := id.NewInstrumentID()
	workflowID := id.NewWorkflowID()
	svc := &stubService{
		processNext: func(_ context.Context, gotInstrument id.InstrumentID) (workflow.Projection, bool, error) {
			s.Equal(instrumentID, gotInstrument)
			return workflow.Projection{ID: workflowID, InstrumentID: gotInstrument, Status: workflow.StatusRunning}, true, nil
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/instruments/"+instrumentID.String()+"/process-next")
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(true, (*resp)["processed"])
	wf := (*resp)["workflow"].(map[string]any)
	s.Equal(workflowID.String(), wf["id"])
}

func (s *WorkflowHandlerSuite) TestProcessNextCassetteEmptyQueue() {
	svc := &stubService{
		processNext: func(context.Context, id.InstrumentID) (workflow.Projection, bool, error) {
			return workflow.Projection{}, false, nil
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/instruments/"+id.NewInstrumentID().String()+"/process-next")
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	s.Equal(false, (*resp)["processed"])
	s.NotContains(*resp, "workflow")
}

func (s *WorkflowHandlerSuite) TestGetWorkflow() {
	workflowID := id.NewWorkflowID()
	svc := &stubService{
		get: func(_ context.Context, gotID id.WorkflowID) (workflow.Projection, error) {
			s.Equal(workflowID, gotID)
			return workflow.Projection{ID: gotID, Status: workflow.StatusCompleted}, nil
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/workflows/"+workflowID.String())
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[workflow.Projection](s.T(), rr)
	s.Equal(workflowID, resp.ID)
	s.Equal(workflow.StatusCompleted, resp.Status)
}

func (s *WorkflowHandlerSuite) TestGetWorkflowNotFound() {
	svc := &stubService{
		get: func(_ context.Context, gotID id.WorkflowID) (workflow.Projection, error) {
			return workflow.Projection{}, dErrors.New(dErrors.CodeNotFound, "workflow not found: "+gotID.String())
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/workflows/"+id.NewWorkflowID().String())
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *WorkflowHandlerSuite) TestGetWorkflowSamples() {
	workflowID := id.NewWorkflowID()
	orderID := id.NewOrderID()
	svc := &stubService{
		getSamples: func(_ context.Context, gotID id.WorkflowID) ([]workflow.Sample, error) {
			s.Equal(workflowID, gotID)
			return []workflow.Sample{
				{ID: id.NewSampleID(), Barcode: "BC00000001", OrderID: &orderID, Status: workflow.SampleValidated, Position: 0},
				{ID: id.NewSampleID(), Barcode: "??", Status: workflow.SampleSkipped, SkipReason: workflow.SkipReasonInvalidBarcode, Position: 1},
			}, nil
		},
	}
	router := s.newRouter(svc)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/v1/workflows/"+workflowID.String()+"/samples")
	rr := testutil.DoRequest(router, s.authorize(req))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[map[string][]sampleResponse](s.T(), rr)
	samples := (*resp)["samples"]
	s.Require().Len(samples, 2)
	s.Equal("BC00000001", samples[0].Barcode)
	s.Equal(&orderID, samples[0].OrderID)
	s.Equal(workflow.SampleSkipped, samples[1].Status)
	s.Equal(workflow.SkipReasonInvalidBarcode, samples[1].SkipReason)
}
