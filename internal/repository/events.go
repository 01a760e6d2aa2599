package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgewatch/edgewatch/internal/model"
)

// EventStore holds the events registered for tracking. Events enter through
// the admin API and are resolved by shard agents when assigned.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]*model.Event
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]*model.Event)}
}

func (s *EventStore) Put(event *model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
}

func (s *EventStore) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s not registered", eventID)
	}
	return event, nil
}

func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
