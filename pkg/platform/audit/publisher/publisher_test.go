package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "verigate/pkg/domain"
	audit "verigate/pkg/platform/audit"
	"verigate/pkg/platform/audit/store/memory"
)

// gatedStore blocks every Append until release is closed.
type gatedStore struct {
	*memory.InMemoryStore
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		InMemoryStore: memory.NewInMemoryStore(),
		release:       make(chan struct{}),
		entered:       make(chan struct{}),
	}
}

func (g *gatedStore) Append(ctx context.Context, e audit.Event) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.InMemoryStore.Append(ctx, e)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("sink down") }

type PublisherSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.InMemoryStore
	logger *slog.Logger
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewInMemoryStore()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func settled(userID id.UserID) audit.Event {
	return audit.Event{UserID: userID, Action: string(audit.EventVerificationSettled), Decision: "success"}
}

func (s *PublisherSuite) TestInline() {
	pub := NewPublisher(s.store, WithLogger(s.logger))
	defer pub.Close()

	s.Run("fills timestamp and category", func() {
		before := time.Now()
		s.Require().NoError(pub.Emit(s.ctx, audit.Event{UserID: 1, Action: string(audit.EventVerificationRefunded), Amount: 5}))

		events, err := pub.List(s.ctx, 1)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.False(events[0].Timestamp.Before(before))
		s.Equal(audit.CategoryLedger, events[0].Category)
		s.Equal(5, events[0].Amount)
	})

	s.Run("keeps caller supplied fields", func() {
		at := time.Date(2026, 2, 2, 8, 0, 0, 0, time.UTC)
		s.Require().NoError(pub.Emit(s.ctx, audit.Event{
			UserID:    2,
			Action:    string(audit.EventUserBlocked),
			Category:  audit.CategoryVerification,
			Timestamp: at,
		}))

		events, err := pub.List(s.ctx, 2)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(at, events[0].Timestamp)
		s.Equal(audit.CategoryVerification, events[0].Category)
	})

	s.Run("lists in emit order per user", func() {
		for _, action := range []audit.AuditEvent{audit.EventVerificationSettled, audit.EventRewardCodePending, audit.EventRewardCodeReady} {
			s.Require().NoError(pub.Emit(s.ctx, audit.Event{UserID: 3, Action: string(action)}))
		}
		s.Require().NoError(pub.Emit(s.ctx, settled(4)))

		events, err := pub.List(s.ctx, 3)
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		s.Equal(string(audit.EventRewardCodeReady), events[2].Action)
	})
}

func (s *PublisherSuite) TestAsync() {
	s.Run("close drains the buffer", func() {
		pub := NewPublisher(s.store, WithAsyncBuffer(32), WithLogger(s.logger))
		for range 20 {
			s.Require().NoError(pub.Emit(s.ctx, settled(10)))
		}
		pub.Close()
		pub.Close()

		events, err := s.store.ListByUser(s.ctx, 10)
		s.Require().NoError(err)
		s.Len(events, 20)
	})

	s.Run("full buffer drops instead of blocking", func() {
		gated := newGatedStore()
		pub := NewPublisher(gated, WithAsyncBuffer(1), WithLogger(s.logger))

		s.Require().NoError(pub.Emit(s.ctx, settled(11)))
		<-gated.entered
		s.Require().NoError(pub.Emit(s.ctx, settled(11)))
		s.ErrorIs(pub.Emit(s.ctx, settled(11)), errBufferFull)

		close(gated.release)
		pub.Close()
		events, err := gated.ListByUser(s.ctx, 11)
		s.Require().NoError(err)
		s.Len(events, 2)
	})

	s.Run("cancelled context is rejected", func() {
		pub := NewPublisher(s.store, WithAsyncBuffer(4), WithLogger(s.logger))
		defer pub.Close()

		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		s.ErrorIs(pub.Emit(ctx, settled(12)), context.Canceled)
	})
}

func (s *PublisherSuite) TestFanout() {
	s.Run("tries every sink and joins errors", func() {
		pub := NewPublisher(Fanout{failingStore{}, s.store})
		defer pub.Close()

		s.Error(pub.Emit(s.ctx, settled(20)))
		events, err := pub.List(s.ctx, 20)
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("listing needs a lister", func() {
		pub := NewPublisher(Fanout{failingStore{}})
		_, err := pub.List(s.ctx, 20)
		s.Error(err)

		_, err = NewPublisher(failingStore{}).List(s.ctx, 20)
		s.Error(err)
	})
}
