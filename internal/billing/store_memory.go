package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryEventStore is the in-memory event log for tests.
type MemoryEventStore struct {
	mu     sync.Mutex
	byID   map[string]Event
	events []Event
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{byID: map[string]Event{}}
}

func (s *MemoryEventStore) Record(ctx context.Context, e Event) (bool, error) {
	if e.StripeEventID == "" {
		return false, errors.New("billing: stripe event id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.byID[e.StripeEventID]; seen {
		return false, nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.byID[e.StripeEventID] = e
	s.events = append(s.events, e)
	return true, nil
}

func (s *MemoryEventStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
