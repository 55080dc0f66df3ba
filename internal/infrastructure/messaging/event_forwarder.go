package messaging

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/event"
	"go.uber.org/zap"
)

// EventForwarder publishes domain events to Kafka. It subscribes to the
// in-process bus as a wildcard handler.
type EventForwarder struct {
	writer     MessageWriter
	serializer *event.EventSerializer
	logger     *zap.Logger
}

// NewEventForwarder creates a new EventForwarder
func NewEventForwarder(writer MessageWriter, serializer *event.EventSerializer, logger *zap.Logger) *EventForwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventForwarder{
		writer:     writer,
		serializer: serializer,
		logger:     logger.Named("event_forwarder"),
	}
}

// EventTypes returns nil so the forwarder receives every event
func (f *EventForwarder) EventTypes() []string {
	return nil
}

// Handle writes the event to the event topic keyed by aggregate id
func (f *EventForwarder) Handle(ctx context.Context, e shared.DomainEvent) error {
	// inbound order events are not echoed back
	if e.EventType() == stock.EventTypeOrderFinalized {
		return nil
	}

	payload, err := f.serializer.Serialize(e)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", e.EventType(), err)
	}

	msg := kafka.Message{
		Key:   []byte(e.AggregateID()),
		Value: payload,
		Time:  e.OccurredAt(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(e.EventType())},
			{Key: "event_id", Value: []byte(e.EventID().String())},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Error("Failed to forward event",
			zap.String("event_type", e.EventType()),
			zap.String("event_id", e.EventID().String()),
			zap.Error(err),
		)
		return fmt.Errorf("write %s: %w", e.EventType(), err)
	}
	return nil
}

// Close closes the underlying writer
func (f *EventForwarder) Close() error {
	return f.writer.Close()
}

var _ shared.EventHandler = (*EventForwarder)(nil)
