package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
)

// registration pairs a handler with the id it was registered under.
type registration struct {
	id      string
	handler interfaces.EventHandler
}

// Service implements EventService interface with pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]registration
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]registration),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	s.subscribers[eventType] = append(s.subscribers[eventType], registration{id: id, handler: handler})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return id, nil
}

// Unsubscribe removes a handler from an event type
func (s *Service) Unsubscribe(eventType interfaces.EventType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	regs := s.subscribers[eventType]
	for i, r := range regs {
		if r.id == id {
			s.subscribers[eventType] = append(regs[:i], regs[i+1:]...)
			s.logger.Debug().
				Str("event_type", string(eventType)).
				Msg("Event handler unsubscribed")
			return nil
		}
	}

	return fmt.Errorf("handler not found for event type: %s", eventType)
}

// Publish sends an event to all subscribers asynchronously
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	regs := make([]registration, len(s.subscribers[event.Type]))
	copy(regs, s.subscribers[event.Type])
	s.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}

	for _, r := range regs {
		go func(h interfaces.EventHandler) {
			if err := h(ctx, event); err != nil {
				s.logger.Error().
					Err(err).
					Str("event_type", string(event.Type)).
					Msg("Event handler failed")
			}
		}(r.handler)
	}

	return nil
}

// PublishSync sends an event to all subscribers and waits for completion.
// Handlers run in registration order so store mutation notifications are
// observed in mutation order.
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	s.mu.RLock()
	regs := make([]registration, len(s.subscribers[event.Type]))
	copy(regs, s.subscribers[event.Type])
	s.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}

	var errs []error
	for _, r := range regs {
		if err := r.handler(ctx, event); err != nil {
			s.logger.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %d errors", len(errs))
	}

	return nil
}

// Close shuts down the event service
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType][]registration)
	s.logger.Info().Msg("Event service closed")

	return nil
}
