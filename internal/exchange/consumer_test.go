package exchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/timebankhq/timebank-go/internal/domain"
	"github.com/timebankhq/timebank-go/internal/notify"
	"github.com/timebankhq/timebank-go/internal/realtime"
	"github.com/timebankhq/timebank-go/internal/session"
	"github.com/timebankhq/timebank-go/shared/contracts"
	sharederrors "github.com/timebankhq/timebank-go/shared/errors"
)

type MockExchangeService struct {
	mock.Mock
}

func (m *MockExchangeService) Create(ctx context.Context, offerID contracts.ID) (*domain.Exchange, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Exchange), args.Error(1)
}

func (m *MockExchangeService) Get(ctx context.Context, id contracts.ID) (*domain.Exchange, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Exchange), args.Error(1)
}

func (m *MockExchangeService) GetByOffer(ctx context.Context, offerID contracts.ID) (*domain.Exchange, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Exchange), args.Error(1)
}

func (m *MockExchangeService) Accept(ctx context.Context, id contracts.ID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockExchangeService) Reject(ctx context.Context, id contracts.ID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockExchangeService) ProposeDate(ctx context.Context, id contracts.ID, date, timeOfDay string) error {
	return m.Called(ctx, id, date, timeOfDay).Error(0)
}

func (m *MockExchangeService) ConfirmCompletion(ctx context.Context, id contracts.ID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockExchangeService) SubmitRating(ctx context.Context, rating domain.Rating) error {
	return m.Called(ctx, rating).Error(0)
}

type recordSink struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (s *recordSink) Publish(n notify.Notification) {
	s.mu.Lock()
	s.notes = append(s.notes, n)
	s.mu.Unlock()
}

func (s *recordSink) kinds() []notify.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]notify.Kind, 0, len(s.notes))
	for _, n := range s.notes {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type stubSocket struct {
	state     realtime.State
	openPath  string
	openToken string
	closeCode int
}

func (s *stubSocket) Open(path, token string, handler realtime.Handler, policy realtime.Policy) {
	s.openPath = path
	s.openToken = token
}

func (s *stubSocket) Close(code int, reason string) {
	s.closeCode = code
	s.state = realtime.StateClosed
}

func (s *stubSocket) State() realtime.State { return s.state }

type ConsumerSuite struct {
	suite.Suite
	svc      *MockExchangeService
	sink     *recordSink
	sock     *stubSocket
	consumer *Consumer
}

func (s *ConsumerSuite) SetupTest() {
	s.svc = new(MockExchangeService)
	s.sink = &recordSink{}
	s.sock = &stubSocket{state: realtime.StateOpen}
	s.consumer = NewConsumer(pendingExchange(), session.New("7", "tok"), s.sock, s.svc, s.sink, nil)
}

func pendingExchange() domain.Exchange {
	return domain.Exchange{
		ID:         "42",
		OfferID:    "offer-9",
		OfferTitle: "Two hours of gardening",
		Hours:      2,
		Requester:  domain.Participant{UserID: "7", DisplayName: "Ana"},
		Provider:   domain.Participant{UserID: "8", DisplayName: "Bo"},
		Status:     domain.StatusPending,
		CreatedAt:  time.Now(),
	}
}

func delta(status string) contracts.ExchangeDelta {
	return contracts.ExchangeDelta{Status: status}
}

func (s *ConsumerSuite) TestStartOpensExchangePath() {
	s.consumer.Start(realtime.DefaultPolicy())
	s.Equal("/ws/exchange/42/", s.sock.openPath)
	s.Equal("tok", s.sock.openToken)
}

func (s *ConsumerSuite) TestStopClosesNormally() {
	s.consumer.Stop()
	s.Equal(websocket.CloseNormalClosure, s.sock.closeCode)
}

func (s *ConsumerSuite) TestAcceptedTransitionNotifiesOnce() {
	s.consumer.HandleFrame(contracts.ExchangeDeltaFrame{Delta: delta("ACCEPTED")})

	s.Equal(domain.StatusAccepted, s.consumer.Exchange().Status)
	s.Equal([]notify.Kind{notify.KindExchangeAccepted}, s.sink.kinds())

	// A second push with the same status but a new date must stay silent.
	date := "2026-03-01"
	s.consumer.HandleFrame(contracts.ExchangeDeltaFrame{
		Delta: contracts.ExchangeDelta{Status: "ACCEPTED", ProposedDate: &date},
	})

	ex := s.consumer.Exchange()
	s.Require().NotNil(ex.ProposedDate)
	s.Equal(date, *ex.ProposedDate)
	s.Equal([]notify.Kind{notify.KindExchangeAccepted}, s.sink.kinds())
}

func (s *ConsumerSuite) TestCompletedTransitionPromptsRating() {
	s.consumer.HandleFrame(contracts.ExchangeDeltaFrame{Delta: delta("COMPLETED")})

	s.Equal([]notify.Kind{notify.KindExchangeCompleted, notify.KindRatingPrompt}, s.sink.kinds())
}

func (s *ConsumerSuite) TestResyncSnapshotAppliesLikeUpdate() {
	s.consumer.HandleFrame(contracts.ExchangeDeltaFrame{Delta: delta("IN_PROGRESS"), Resync: true})

	s.Equal(domain.StatusInProgress, s.consumer.Exchange().Status)
	s.Empty(s.sink.kinds())
}

func (s *ConsumerSuite) TestDeltaPreservesImmutableFields() {
	s.consumer.HandleFrame(contracts.ExchangeDeltaFrame{Delta: delta("ACCEPTED")})

	ex := s.consumer.Exchange()
	s.Equal(contracts.ID("offer-9"), ex.OfferID)
	s.Equal("Two hours of gardening", ex.OfferTitle)
	s.Equal("Ana", ex.Requester.DisplayName)
}

func (s *ConsumerSuite) TestNotificationSignalTriggersRefetch() {
	refreshed := pendingExchange()
	refreshed.Status = domain.StatusAccepted
	s.svc.On("Get", mock.Anything, contracts.ID("42")).Return(&refreshed, nil)

	s.consumer.HandleFrame(contracts.NotificationFrame{})

	s.Equal(domain.StatusAccepted, s.consumer.Exchange().Status)
	// Refreshes are silent even when the status moved.
	s.Empty(s.sink.kinds())
	s.svc.AssertExpectations(s.T())
}

func (s *ConsumerSuite) TestAcceptRefreshesOnSuccess() {
	refreshed := pendingExchange()
	refreshed.Status = domain.StatusAccepted
	s.svc.On("Accept", mock.Anything, contracts.ID("42")).Return(nil)
	s.svc.On("Get", mock.Anything, contracts.ID("42")).Return(&refreshed, nil)

	s.NoError(s.consumer.Accept(context.Background()))

	s.Equal(domain.StatusAccepted, s.consumer.Exchange().Status)
	s.Empty(s.sink.kinds())
	s.svc.AssertExpectations(s.T())
}

func (s *ConsumerSuite) TestAlreadyActionedJustRefreshes() {
	refreshed := pendingExchange()
	refreshed.Status = domain.StatusAccepted
	s.svc.On("Accept", mock.Anything, contracts.ID("42")).Return(domain.ErrAlreadyActioned)
	s.svc.On("Get", mock.Anything, contracts.ID("42")).Return(&refreshed, nil)

	s.NoError(s.consumer.Accept(context.Background()))

	s.Equal(domain.StatusAccepted, s.consumer.Exchange().Status)
	s.Empty(s.sink.kinds())
}

func (s *ConsumerSuite) TestActionFailureKeepsStateAndNotifies() {
	s.svc.On("Accept", mock.Anything, contracts.ID("42")).
		Return(sharederrors.Unavailable("api unreachable"))

	err := s.consumer.Accept(context.Background())

	s.Error(err)
	s.Equal(domain.StatusPending, s.consumer.Exchange().Status)
	s.Equal([]notify.Kind{notify.KindTransientError}, s.sink.kinds())
	s.svc.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
}

func (s *ConsumerSuite) TestProposeDateDelegates() {
	refreshed := pendingExchange()
	s.svc.On("ProposeDate", mock.Anything, contracts.ID("42"), "2026-03-01", "14:00").Return(nil)
	s.svc.On("Get", mock.Anything, contracts.ID("42")).Return(&refreshed, nil)

	s.NoError(s.consumer.ProposeDate(context.Background(), "2026-03-01", "14:00"))
	s.svc.AssertExpectations(s.T())
}

func (s *ConsumerSuite) TestRateSubmitsRating() {
	refreshed := pendingExchange()
	refreshed.Status = domain.StatusCompleted
	s.svc.On("SubmitRating", mock.Anything, domain.Rating{ExchangeID: "42", Score: 5, Comment: "great"}).Return(nil)
	s.svc.On("Get", mock.Anything, contracts.ID("42")).Return(&refreshed, nil)

	s.NoError(s.consumer.Rate(context.Background(), 5, "great"))
	s.svc.AssertExpectations(s.T())
}

func TestConsumerSuite(t *testing.T) {
	suite.Run(t, new(ConsumerSuite))
}
