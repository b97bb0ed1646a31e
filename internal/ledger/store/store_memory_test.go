package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"verigate/internal/ledger/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) seed(userID id.UserID, balance int) {
	s.Require().NoError(s.store.UpsertUser(s.ctx, models.User{ID: userID, Username: "u", Balance: balance}))
}

func (s *InMemoryStoreSuite) TestUsers() {
	s.Run("unknown user", func() {
		_, err := s.store.GetUser(s.ctx, 1)
		s.ErrorIs(err, sentinel.ErrNotFound)
		exists, err := s.store.UserExists(s.ctx, 1)
		s.NoError(err)
		s.False(exists)
	})

	s.Run("upsert keeps balance", func() {
		s.seed(2, 10)
		s.Require().NoError(s.store.UpsertUser(s.ctx, models.User{ID: 2, Username: "renamed", Balance: 999}))
		user, err := s.store.GetUser(s.ctx, 2)
		s.Require().NoError(err)
		s.Equal("renamed", user.Username)
		s.Equal(10, user.Balance)
		s.False(user.CreatedAt.IsZero())
	})
}

func (s *InMemoryStoreSuite) TestReserveBalance() {
	s.seed(1, 5)

	ok, err := s.store.ReserveBalance(s.ctx, 1, 5)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.ReserveBalance(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.False(ok, "balance is exhausted")

	ok, err = s.store.ReserveBalance(s.ctx, 99, 1)
	s.Require().NoError(err)
	s.False(ok, "unknown user")

	s.seed(3, 50)
	s.Require().NoError(s.store.SetBlocked(s.ctx, 3, true))
	ok, err = s.store.ReserveBalance(s.ctx, 3, 5)
	s.Require().NoError(err)
	s.False(ok, "blocked user")
}

func (s *InMemoryStoreSuite) TestConcurrentReservationsNeverOverdraw() {
	s.seed(1, 50)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.store.ReserveBalance(s.ctx, 1, 5); ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(10), granted.Load())
	user, err := s.store.GetUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(0, user.Balance)
}

func (s *InMemoryStoreSuite) TestRefundOnce() {
	s.seed(1, 0)
	attempt := id.NewAttemptID()

	var refunds atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.store.RefundOnce(s.ctx, attempt, 1, 5); err == nil && ok {
				refunds.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(1), refunds.Load())
	user, err := s.store.GetUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(5, user.Balance)

	_, err = s.store.RefundOnce(s.ctx, id.NewAttemptID(), 42, 5)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestCreditAndBlock() {
	s.seed(1, 3)
	balance, err := s.store.CreditBalance(s.ctx, 1, 7)
	s.Require().NoError(err)
	s.Equal(10, balance)

	_, err = s.store.CreditBalance(s.ctx, 2, 7)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.SetBlocked(s.ctx, 2, true), sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestVerifications() {
	s.seed(1, 0)
	older := models.VerificationRecord{
		AttemptID: id.NewAttemptID(), UserID: 1, Category: "bolt_teacher",
		Status: models.StatusPending, ExternalID: "ext-1", CreatedAt: time.Now().Add(-time.Minute),
	}
	newer := models.VerificationRecord{
		AttemptID: id.NewAttemptID(), UserID: 1, Category: "gemini_one_pro",
		Status: models.StatusSuccess, CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.RecordVerification(s.ctx, older))
	s.Require().NoError(s.store.RecordVerification(s.ctx, newer))
	s.Require().NoError(s.store.RecordVerification(s.ctx, models.VerificationRecord{AttemptID: id.NewAttemptID(), UserID: 2}))

	list, err := s.store.ListVerifications(s.ctx, 1, 10)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(newer.AttemptID, list[0].AttemptID)

	list, err = s.store.ListVerifications(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Run("update by attempt keeps created_at and input", func() {
		older.Status = models.StatusSuccess
		older.Detail = "Code: ABC"
		older.Category = "ignored"
		s.Require().NoError(s.store.RecordVerification(s.ctx, older))

		found, err := s.store.FindVerificationByExternalID(s.ctx, 1, "ext-1")
		s.Require().NoError(err)
		s.Equal(models.StatusSuccess, found.Status)
		s.Equal("Code: ABC", found.Detail)
		s.Equal("bolt_teacher", found.Category)
	})

	s.Run("find is scoped to the user", func() {
		_, err := s.store.FindVerificationByExternalID(s.ctx, 2, "ext-1")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestOwedRefunds() {
	s.seed(1, 0)
	first := models.VerificationRecord{
		AttemptID: id.NewAttemptID(), UserID: 1, Status: models.StatusFailed,
		RefundOwed: 5, CreatedAt: time.Now().Add(-time.Minute),
	}
	second := models.VerificationRecord{
		AttemptID: id.NewAttemptID(), UserID: 1, Status: models.StatusFailed,
		RefundOwed: 5, CreatedAt: time.Now(),
	}
	settled := models.VerificationRecord{
		AttemptID: id.NewAttemptID(), UserID: 1, Status: models.StatusFailed, CreatedAt: time.Now(),
	}
	for _, r := range []models.VerificationRecord{second, first, settled} {
		s.Require().NoError(s.store.RecordVerification(s.ctx, r))
	}

	owed, err := s.store.ListOwedRefunds(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal([]models.OwedRefund{
		{AttemptID: first.AttemptID, UserID: 1, Amount: 5},
		{AttemptID: second.AttemptID, UserID: 1, Amount: 5},
	}, owed)

	owed, err = s.store.ListOwedRefunds(s.ctx, 1)
	s.Require().NoError(err)
	s.Len(owed, 1)

	s.Run("a later record for the attempt keeps the amount owed", func() {
		first.Status = models.StatusFailed
		first.RefundOwed = 0
		s.Require().NoError(s.store.RecordVerification(s.ctx, first))
		owed, err := s.store.ListOwedRefunds(s.ctx, 10)
		s.Require().NoError(err)
		s.Len(owed, 2)
	})

	s.Run("refunded attempts drop out", func() {
		ok, err := s.store.RefundOnce(s.ctx, first.AttemptID, 1, 5)
		s.Require().NoError(err)
		s.True(ok)

		owed, err := s.store.ListOwedRefunds(s.ctx, 10)
		s.Require().NoError(err)
		s.Equal([]models.OwedRefund{{AttemptID: second.AttemptID, UserID: 1, Amount: 5}}, owed)
	})
}

func (s *InMemoryStoreSuite) TestCheckIn() {
	s.seed(1, 0)
	day := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	balance, ok, err := s.store.CheckIn(s.ctx, 1, day, 1)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(1, balance)

	_, ok, err = s.store.CheckIn(s.ctx, 1, day.Add(6*time.Hour), 1)
	s.Require().NoError(err)
	s.False(ok, "same day")

	balance, ok, err = s.store.CheckIn(s.ctx, 1, day.AddDate(0, 0, 1), 1)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(2, balance)

	_, ok, err = s.store.CheckIn(s.ctx, 9, day, 1)
	s.Require().NoError(err)
	s.False(ok, "unknown user")

	s.seed(2, 0)
	s.Require().NoError(s.store.SetBlocked(s.ctx, 2, true))
	_, ok, err = s.store.CheckIn(s.ctx, 2, day, 1)
	s.Require().NoError(err)
	s.False(ok, "blocked user")

	blocked, err := s.store.ListBlocked(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(blocked, 1)
	s.Equal(id.UserID(2), blocked[0].ID)
}
