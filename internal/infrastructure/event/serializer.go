package event

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/shopcore/stockhold/internal/domain/shared"
)

// EventSerializer encodes events as JSON and decodes them back by event
// type, which travels beside the payload in a message header.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

// NewEventSerializer returns a serializer with no types registered.
func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// Register maps eventType to a constructor for its zero value.
func (s *EventSerializer) Register(eventType string, factory func() shared.DomainEvent) {
	s.mu.Lock()
	s.factories[eventType] = factory
	s.mu.Unlock()
}

// RegisterType registers *T as the decoded form of eventType.
func RegisterType[T any, PT interface {
	*T
	shared.DomainEvent
}](s *EventSerializer, eventType string) {
	s.Register(eventType, func() shared.DomainEvent { return PT(new(T)) })
}

// Types returns the registered event types, sorted.
func (s *EventSerializer) Types() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Serialize encodes e.
func (s *EventSerializer) Serialize(e shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", e.EventType(), err)
	}
	return data, nil
}

// Deserialize decodes data as eventType. A payload whose own type field
// names a different event is rejected.
func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}

	e := factory()
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", eventType, err)
	}
	if got := e.EventType(); got != "" && got != eventType {
		return nil, fmt.Errorf("payload type %q does not match %q", got, eventType)
	}
	return e, nil
}
