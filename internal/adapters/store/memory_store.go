package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey/subtrack/internal/core"
)

// MemoryStore is an in-memory implementation of the EventStore interface
type MemoryStore struct {
	events []core.SubscriptionEvent
	seen   map[string]struct{}
	closed bool
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewMemoryStore creates a new in-memory event store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		seen:   make(map[string]struct{}),
		logger: logger,
	}
}

// Append stores the event unless its id is already present
func (s *MemoryStore) Append(ctx context.Context, ev core.SubscriptionEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateForAppend(ev); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.seen[ev.ID]; ok {
		return false, nil
	}
	s.seen[ev.ID] = struct{}{}
	s.events = append(s.events, ev)
	return true, nil
}

// LoadAll returns a snapshot of every stored event in insertion order
func (s *MemoryStore) LoadAll(ctx context.Context) (*core.LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	events := make([]core.SubscriptionEvent, len(s.events))
	copy(events, s.events)
	return &core.LoadResult{Events: events}, nil
}

// Close marks the store closed; the events are dropped
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug("Memory store closed", zap.Int("events", len(s.events)))
	return nil
}
