package service_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pubdigest/internal/config"
	"pubdigest/internal/domain"
	"pubdigest/internal/service"
	"pubdigest/internal/service/mocks"
	"pubdigest/internal/testutil"
)

type DispatchServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	publications *mocks.MockPublicationStore
	sources      *mocks.MockSourceStore
	subscribers  *mocks.MockSubscriberStore
	renderer     *mocks.MockRenderer
	transport    *mocks.MockTransport

	service *service.DispatchService
	source  domain.Source
	cfg     config.DispatchConfig
}

func (s *DispatchServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.publications = mocks.NewMockPublicationStore(s.ctrl)
	s.sources = mocks.NewMockSourceStore(s.ctrl)
	s.subscribers = mocks.NewMockSubscriberStore(s.ctrl)
	s.renderer = mocks.NewMockRenderer(s.ctrl)
	s.transport = mocks.NewMockTransport(s.ctrl)

	s.cfg = config.DispatchConfig{DeliveryTimeout: time.Second}
	s.source = domain.Source{ID: 1, Name: "Albo Pretorio"}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.service = service.NewDispatchService(
		s.publications,
		s.sources,
		s.subscribers,
		s.renderer,
		s.transport,
		logger,
		s.cfg,
	)
}

func (s *DispatchServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDispatchServiceTestSuite(t *testing.T) {
	suite.Run(t, new(DispatchServiceTestSuite))
}

func (s *DispatchServiceTestSuite) TestDispatch_NothingNew() {
	ctx := context.Background()

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(9), nil)
	s.publications.EXPECT().ListAfter(ctx, int64(1), int64(9)).Return(nil, nil)

	result, err := s.service.Dispatch(ctx, s.source)

	s.NoError(err)
	s.False(result.Sent)
	s.Equal(0, result.Count)
	s.Equal(int64(9), result.Watermark)
}

func (s *DispatchServiceTestSuite) TestDispatch_AdvancesToMaxID() {
	ctx := context.Background()

	pubs := []domain.Publication{
		{ID: 4, SourceID: 1, Subject: testutil.Ptr("first")},
		{ID: 6, SourceID: 1, Subject: testutil.Ptr("second")},
	}
	subs := []domain.Subscriber{
		{ID: 1, SourceID: 1, Email: "a@example.com"},
		{ID: 2, SourceID: 1, Email: "b@example.com"},
	}
	digest := &domain.Digest{Subject: "Newsletter Albo Pretorio"}

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(3), nil)
	s.publications.EXPECT().ListAfter(ctx, int64(1), int64(3)).Return(pubs, nil)
	s.renderer.EXPECT().Render("Albo Pretorio", pubs).Return(digest, nil)
	s.subscribers.EXPECT().ListBySource(ctx, int64(1)).Return(subs, nil)
	s.transport.EXPECT().Deliver(gomock.Any(), subs[0], digest).DoAndReturn(
		func(ctx context.Context, _ domain.Subscriber, _ *domain.Digest) error {
			_, hasDeadline := ctx.Deadline()
			s.True(hasDeadline, "each delivery runs under its own timeout")
			return nil
		},
	)
	s.transport.EXPECT().Deliver(gomock.Any(), subs[1], digest).Return(nil)
	s.sources.EXPECT().AdvanceWatermark(ctx, int64(1), int64(6)).Return(nil)

	result, err := s.service.Dispatch(ctx, s.source)

	s.NoError(err)
	s.True(result.Sent)
	s.Equal(2, result.Count)
	s.Equal(2, result.Delivered)
	s.Equal(0, result.Failed)
	s.Equal(int64(6), result.Watermark)
}

func (s *DispatchServiceTestSuite) TestDispatch_PartialFailureKeepsWatermark() {
	ctx := context.Background()
	errSMTP := errors.New("550 mailbox unavailable")

	pubs := []domain.Publication{{ID: 10, SourceID: 1}}
	subs := []domain.Subscriber{
		{ID: 1, SourceID: 1, Email: "a@example.com"},
		{ID: 2, SourceID: 1, Email: "b@example.com"},
		{ID: 3, SourceID: 1, Email: "c@example.com"},
	}
	digest := &domain.Digest{Subject: "Newsletter Albo Pretorio"}

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(0), nil)
	s.publications.EXPECT().ListAfter(ctx, int64(1), int64(0)).Return(pubs, nil)
	s.renderer.EXPECT().Render("Albo Pretorio", pubs).Return(digest, nil)
	s.subscribers.EXPECT().ListBySource(ctx, int64(1)).Return(subs, nil)
	gomock.InOrder(
		s.transport.EXPECT().Deliver(gomock.Any(), subs[0], digest).Return(nil),
		s.transport.EXPECT().Deliver(gomock.Any(), subs[1], digest).Return(errSMTP),
		s.transport.EXPECT().Deliver(gomock.Any(), subs[2], digest).Return(nil),
	)

	result, err := s.service.Dispatch(ctx, s.source)

	s.Require().NotNil(result)
	s.True(result.Sent)
	s.Equal(2, result.Delivered)
	s.Equal(1, result.Failed)
	s.Equal(int64(0), result.Watermark)

	s.ErrorIs(err, domain.ErrDelivery)
	s.ErrorIs(err, errSMTP)

	var deliveryErr *domain.DeliveryError
	s.Require().ErrorAs(err, &deliveryErr)
	s.Require().Len(deliveryErr.Failures, 1)
	s.Equal("b@example.com", deliveryErr.Failures[0].Recipient.Email)
}

func (s *DispatchServiceTestSuite) TestDispatch_AllDeliveriesFail() {
	ctx := context.Background()

	pubs := []domain.Publication{{ID: 2, SourceID: 1}}
	subs := []domain.Subscriber{{ID: 1, SourceID: 1, Email: "a@example.com"}}

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(1), nil)
	s.publications.EXPECT().ListAfter(ctx, int64(1), int64(1)).Return(pubs, nil)
	s.renderer.EXPECT().Render(gomock.Any(), pubs).Return(&domain.Digest{}, nil)
	s.subscribers.EXPECT().ListBySource(ctx, int64(1)).Return(subs, nil)
	s.transport.EXPECT().Deliver(gomock.Any(), subs[0], gomock.Any()).Return(errors.New("connection refused"))

	result, err := s.service.Dispatch(ctx, s.source)

	s.ErrorIs(err, domain.ErrDelivery)
	s.False(result.Sent)
	s.Equal(int64(1), result.Watermark)
}

func (s *DispatchServiceTestSuite) TestDispatch_NoSubscribers() {
	ctx := context.Background()
	pubs := []domain.Publication{{ID: 1, SourceID: 1}}

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(0), nil)
	s.publications.EXPECT().ListAfter(ctx, int64(1), int64(0)).Return(pubs, nil)
	s.renderer.EXPECT().Render(gomock.Any(), pubs).Return(&domain.Digest{}, nil)
	s.subscribers.EXPECT().ListBySource(ctx, int64(1)).Return(nil, nil)

	result, err := s.service.Dispatch(ctx, s.source)

	s.Nil(result)
	s.ErrorIs(err, domain.ErrNoSubscribers)
}

func (s *DispatchServiceTestSuite) TestDispatch_RenderFailure() {
	ctx := context.Background()
	pubs := []domain.Publication{{ID: 1, SourceID: 1}}

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(0), nil)
	s.publications.EXPECT().ListAfter(ctx, int64(1), int64(0)).Return(pubs, nil)
	s.renderer.EXPECT().Render(gomock.Any(), pubs).Return(nil, errors.New("template: missing field"))

	_, err := s.service.Dispatch(ctx, s.source)

	s.ErrorContains(err, "render digest")
}

func (s *DispatchServiceTestSuite) TestDispatch_UnknownSource() {
	ctx := context.Background()

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(0), domain.ErrUnknownSource)

	_, err := s.service.Dispatch(ctx, s.source)

	s.ErrorIs(err, domain.ErrUnknownSource)
	s.NotErrorIs(err, domain.ErrStorage)
}

func (s *DispatchServiceTestSuite) TestDispatch_StorageFailure() {
	ctx := context.Background()
	errDB := errors.New("no such table: publications")

	s.sources.EXPECT().Watermark(ctx, int64(1)).Return(int64(0), nil)
	s.publications.EXPECT().ListAfter(ctx, int64(1), int64(0)).Return(nil, errDB)

	_, err := s.service.Dispatch(ctx, s.source)

	s.ErrorIs(err, domain.ErrStorage)
	s.ErrorIs(err, errDB)
}
