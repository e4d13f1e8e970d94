package order_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"labflow/internal/order"
	"labflow/internal/order/mocks"
	"labflow/pkg/platform/circuit"
	"labflow/pkg/platform/sentinel"
)

type ResolverSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	mockClient *mocks.MockClient
	breaker    *circuit.Breaker
	resolver   *order.Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockClient = mocks.NewMockClient(s.ctrl)
	s.breaker = circuit.New("order-service", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.resolver = order.NewResolver(s.mockClient, s.breaker, logger)
}

func (s *ResolverSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ResolverSuite) TestResolve() {
	ctx := context.Background()

	s.Run("passes through successful lookups", func() {
		want := order.TestOrder{Barcode: "BC-000001"}
		s.mockClient.EXPECT().CreateOrGetOrder(gomock.Any(), "BC-000001").Return(want, nil)

		got, err := s.resolver.Resolve(ctx, "BC-000001")
		s.NoError(err)
		s.Equal(want, got)
	})

	s.Run("not found does not trip the breaker", func() {
		s.mockClient.EXPECT().CreateOrGetOrder(gomock.Any(), gomock.Any()).
			Return(order.TestOrder{}, sentinel.ErrNotFound).Times(5)

		for i := 0; i < 5; i++ {
			_, err := s.resolver.Resolve(ctx, "BC-000002")
			s.ErrorIs(err, sentinel.ErrNotFound)
		}
		s.False(s.breaker.IsOpen())
	})

	s.Run("consecutive unavailability opens the circuit and fails fast", func() {
		s.mockClient.EXPECT().CreateOrGetOrder(gomock.Any(), gomock.Any()).
			Return(order.TestOrder{}, sentinel.ErrUnavailable).Times(2)

		for i := 0; i < 2; i++ {
			_, err := s.resolver.Resolve(ctx, "BC-000003")
			s.ErrorIs(err, sentinel.ErrUnavailable)
		}
		s.True(s.breaker.IsOpen())

		// No client call expected: the open circuit short-circuits.
		_, err := s.resolver.Resolve(ctx, "BC-000003")
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})
}

func (s *ResolverSuite) TestProbe() {
	ctx := context.Background()

	s.mockClient.EXPECT().CreateOrGetOrder(gomock.Any(), gomock.Any()).
		Return(order.TestOrder{}, sentinel.ErrUnavailable).Times(2)
	for i := 0; i < 2; i++ {
		_, _ = s.resolver.Resolve(ctx, "BC-000004")
	}
	s.Require().True(s.breaker.IsOpen())

	// A successful probe through the open circuit closes it again.
	want := order.TestOrder{Barcode: "BC-000004"}
	s.mockClient.EXPECT().CreateOrGetOrder(gomock.Any(), "BC-000004").Return(want, nil)
	got, err := s.resolver.Probe(ctx, "BC-000004")
	s.NoError(err)
	s.Equal(want, got)
	s.False(s.breaker.IsOpen())

	// And regular lookups flow again.
	s.mockClient.EXPECT().CreateOrGetOrder(gomock.Any(), "BC-000005").Return(order.TestOrder{}, nil)
	_, err = s.resolver.Resolve(ctx, "BC-000005")
	s.NoError(err)
}
