// Package memory keeps audit events in process so operators can read a user's
// recent trail without an external sink.
package memory

import (
	"context"
	"sync"

	id "verigate/pkg/domain"
	audit "verigate/pkg/platform/audit"
)

// DefaultRetention bounds the events kept per user.
const DefaultRetention = 500

type InMemoryStore struct {
	mu        sync.RWMutex
	events    map[id.UserID][]audit.Event
	retention int
}

type Option func(*InMemoryStore)

// WithRetention keeps at most n events per user, oldest dropped first.
func WithRetention(n int) Option {
	return func(s *InMemoryStore) {
		if n > 0 {
			s.retention = n
		}
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{events: make(map[id.UserID][]audit.Event), retention: DefaultRetention}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trail := append(s.events[event.UserID], event)
	if over := len(trail) - s.retention; over > 0 {
		trail = append(trail[:0:0], trail[over:]...)
	}
	s.events[event.UserID] = trail
	return nil
}

// ListByUser returns a copy of the user's trail, oldest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[userID]...), nil
}
