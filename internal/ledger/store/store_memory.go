package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"verigate/internal/ledger/models"
	id "verigate/pkg/domain"
	"verigate/pkg/platform/sentinel"
)

// InMemoryStore mirrors the Postgres store's semantics for tests and
// development. A single mutex makes every operation atomic.
type InMemoryStore struct {
	mu            sync.Mutex
	users         map[id.UserID]models.User
	refunded      map[id.AttemptID]struct{}
	verifications map[id.AttemptID]models.VerificationRecord
	checkins      map[id.UserID]string
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		users:         make(map[id.UserID]models.User),
		refunded:      make(map[id.AttemptID]struct{}),
		verifications: make(map[id.AttemptID]models.VerificationRecord),
		checkins:      make(map[id.UserID]string),
	}
}

func (s *InMemoryStore) UpsertUser(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.users[user.ID]; ok {
		existing.Username = user.Username
		existing.FullName = user.FullName
		s.users[user.ID] = existing
		return nil
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.users[user.ID] = user
	return nil
}

func (s *InMemoryStore) UserExists(_ context.Context, userID id.UserID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *InMemoryStore) GetUser(_ context.Context, userID id.UserID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &user, nil
}

func (s *InMemoryStore) ReserveBalance(_ context.Context, userID id.UserID, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || user.Blocked || user.Balance < amount {
		return false, nil
	}
	user.Balance -= amount
	s.users[userID] = user
	return true, nil
}

func (s *InMemoryStore) CreditBalance(_ context.Context, userID id.UserID, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	user.Balance += amount
	s.users[userID] = user
	return user.Balance, nil
}

func (s *InMemoryStore) RefundOnce(_ context.Context, attemptID id.AttemptID, userID id.UserID, amount int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.refunded[attemptID]; done {
		return false, nil
	}
	user, ok := s.users[userID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	user.Balance += amount
	s.users[userID] = user
	s.refunded[attemptID] = struct{}{}
	return true, nil
}

func (s *InMemoryStore) SetBlocked(_ context.Context, userID id.UserID, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	user.Blocked = blocked
	s.users[userID] = user
	return nil
}

func (s *InMemoryStore) RecordVerification(_ context.Context, record models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.verifications[record.AttemptID]; ok {
		existing.Status = record.Status
		existing.Detail = record.Detail
		existing.ExternalID = record.ExternalID
		existing.RefundOwed = max(existing.RefundOwed, record.RefundOwed)
		s.verifications[record.AttemptID] = existing
		return nil
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	s.verifications[record.AttemptID] = record
	return nil
}

func (s *InMemoryStore) FindVerificationByExternalID(_ context.Context, userID id.UserID, externalID string) (*models.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.VerificationRecord
	for _, rec := range s.verifications {
		if rec.UserID != userID || rec.ExternalID != externalID {
			continue
		}
		if found == nil || rec.CreatedAt.After(found.CreatedAt) {
			r := rec
			found = &r
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found, nil
}

func (s *InMemoryStore) ListVerifications(_ context.Context, userID id.UserID, limit int) ([]models.VerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.VerificationRecord
	for _, rec := range s.verifications {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b models.VerificationRecord) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListOwedRefunds(_ context.Context, limit int) ([]models.OwedRefund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var owed []models.VerificationRecord
	for attemptID, record := range s.verifications {
		if record.RefundOwed <= 0 {
			continue
		}
		if _, done := s.refunded[attemptID]; done {
			continue
		}
		owed = append(owed, record)
	}
	slices.SortFunc(owed, func(a, b models.VerificationRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(owed) > limit {
		owed = owed[:limit]
	}
	out := make([]models.OwedRefund, 0, len(owed))
	for _, record := range owed {
		out = append(out, models.OwedRefund{AttemptID: record.AttemptID, UserID: record.UserID, Amount: record.RefundOwed})
	}
	return out, nil
}

func (s *InMemoryStore) CheckIn(_ context.Context, userID id.UserID, day time.Time, reward int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok || user.Blocked {
		return 0, false, nil
	}
	date := day.Format(time.DateOnly)
	if last, seen := s.checkins[userID]; seen && last >= date {
		return 0, false, nil
	}
	user.Balance += reward
	s.users[userID] = user
	s.checkins[userID] = date
	return user.Balance, true, nil
}

func (s *InMemoryStore) ListBlocked(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, user := range s.users {
		if user.Blocked {
			out = append(out, user)
		}
	}
	slices.SortFunc(out, func(a, b models.User) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
