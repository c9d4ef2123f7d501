package broadcaster_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	saramamocks "github.com/IBM/sarama/mocks"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	mmock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/v-starostin/tacbridge/internal/bridge"
	"github.com/v-starostin/tacbridge/internal/jobs/broadcaster"
	"github.com/v-starostin/tacbridge/internal/metrics"
	"github.com/v-starostin/tacbridge/internal/mock"
	"github.com/v-starostin/tacbridge/internal/model"
	"github.com/v-starostin/tacbridge/internal/storage/kv"
)

type broadcasterTestSuite struct {
	suite.Suite
	store       *kv.Store
	publisher   *mock.Publisher
	broadcaster *broadcaster.Broadcaster
	caller      uuid.UUID
}

func (s *broadcasterTestSuite) SetupTest() {
	l := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store, err := kv.Open(l, "ledger", &pebble.Options{FS: vfs.NewMem()})
	s.Require().NoError(err)

	s.store = store
	s.publisher = &mock.Publisher{}
	s.broadcaster = broadcaster.New(l, store, s.publisher, time.Millisecond, metrics.New(prometheus.NewRegistry()))
	s.caller = uuid.New()
}

func (s *broadcasterTestSuite) TearDownTest() {
	s.NoError(s.store.Close())
}

func TestBroadcaster(t *testing.T) {
	suite.Run(t, new(broadcasterTestSuite))
}

func (s *broadcasterTestSuite) record(n int) {
	for i := range n {
		err := s.store.Atomic(context.Background(), func(ctx context.Context, _ bridge.Ledger, journal bridge.Journal) error {
			amount := uint64(i + 1)
			_, err := journal.Append(ctx, model.Conversion{Caller: s.caller, SourceAmount: amount, TargetAmount: amount * 100, Rate: 100})
			return err
		})
		s.Require().NoError(err)
	}
}

func seqOf(seq uint64) any {
	return mmock.MatchedBy(func(e model.Event) bool { return e.Seq == seq })
}

func (s *broadcasterTestSuite) TestFlush() {
	s.record(3)
	s.publisher.On("Publish", mmock.Anything, mmock.AnythingOfType("model.Event")).Return(nil).Times(3)

	n, err := s.broadcaster.Flush(context.Background())
	s.NoError(err)
	s.Equal(3, n)

	pending, err := s.store.Pending(context.Background(), 0)
	s.NoError(err)
	s.Empty(pending)

	first := s.publisher.Calls[0].Arguments.Get(1).(model.Event)
	s.Equal(model.EventConversion, first.Type)
	s.Equal(uint64(1), first.Seq)
	s.Equal(uint64(100), first.TargetAmount)
	s.Equal(s.caller, first.Caller)

	n, err = s.broadcaster.Flush(context.Background())
	s.NoError(err)
	s.Zero(n)
	s.publisher.AssertNumberOfCalls(s.T(), "Publish", 3)
}

func (s *broadcasterTestSuite) TestFlushKeepsFailedPending() {
	s.record(3)
	errPublish := errors.New("broker down")
	s.publisher.On("Publish", mmock.Anything, seqOf(1)).Return(nil).Once()
	s.publisher.On("Publish", mmock.Anything, seqOf(2)).Return(errPublish).Once()

	n, err := s.broadcaster.Flush(context.Background())
	s.ErrorIs(err, errPublish)
	s.Equal(1, n)

	pending, err := s.store.Pending(context.Background(), 0)
	s.NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(uint64(2), pending[0].Seq)

	s.publisher.On("Publish", mmock.Anything, seqOf(2)).Return(nil).Once()
	s.publisher.On("Publish", mmock.Anything, seqOf(3)).Return(nil).Once()

	n, err = s.broadcaster.Flush(context.Background())
	s.NoError(err)
	s.Equal(2, n)
	s.publisher.AssertExpectations(s.T())
}

func (s *broadcasterTestSuite) TestRunStopsOnCancel() {
	s.record(1)
	published := make(chan struct{})
	s.publisher.On("Publish", mmock.Anything, seqOf(1)).Return(nil).Once().
		Run(func(mmock.Arguments) { close(published) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.broadcaster.Run(ctx)
		close(done)
	}()

	select {
	case <-published:
	case <-time.After(5 * time.Second):
		s.FailNow("event was not published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("broadcaster did not stop")
	}
}

func (s *broadcasterTestSuite) TestClose() {
	s.publisher.On("Close").Return(nil).Once()
	s.NoError(s.broadcaster.Close())
	s.publisher.AssertExpectations(s.T())
}

func TestKafkaPublisher(t *testing.T) {
	caller := uuid.New()
	event := model.Event{V: 1, Type: model.EventConversion, Seq: 7, Caller: caller, SourceAmount: 2, TargetAmount: 200}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := saramamocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got model.Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Seq != 7 || got.Caller != caller {
			return errors.New("unexpected event")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := broadcaster.NewKafkaPublisher(producer, "tac.conversions")
	require.NoError(t, p.Publish(context.Background(), event))
	require.ErrorIs(t, p.Publish(context.Background(), event), sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestLogPublisher(t *testing.T) {
	p := broadcaster.NewLogPublisher(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, p.Publish(context.Background(), model.Event{Seq: 1}))
	require.NoError(t, p.Close())
}
