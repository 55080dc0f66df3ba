package messaging

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/event"
	"go.uber.org/zap"
)

// ConsumerConfig controls redelivery of failed messages
type ConsumerConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// OrderFinalizedConsumer reads OrderFinalized messages and hands them to a
// handler. Offsets are committed only after the handler finishes, so a crash
// mid-order redelivers it; the handler is expected to be idempotent.
type OrderFinalizedConsumer struct {
	reader     MessageReader
	serializer *event.EventSerializer
	handler    shared.EventHandler
	config     ConsumerConfig
	logger     *zap.Logger
}

// NewOrderFinalizedConsumer creates a new consumer
func NewOrderFinalizedConsumer(
	reader MessageReader,
	serializer *event.EventSerializer,
	handler shared.EventHandler,
	config ConsumerConfig,
	logger *zap.Logger,
) *OrderFinalizedConsumer {
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderFinalizedConsumer{
		reader:     reader,
		serializer: serializer,
		handler:    handler,
		config:     config,
		logger:     logger.Named("order_consumer"),
	}
}

// Run consumes until ctx is cancelled or the reader fails
func (c *OrderFinalizedConsumer) Run(ctx context.Context) error {
	c.logger.Info("Order consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Order consumer stopped")
				return nil
			}
			return err
		}

		if err := c.process(ctx, msg); err != nil {
			// only cancellation gets here; leave the offset for redelivery
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to commit offset",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// Close closes the underlying reader
func (c *OrderFinalizedConsumer) Close() error {
	return c.reader.Close()
}

// process handles one message. It returns an error only when ctx was
// cancelled; poison and permanently failing messages are logged and skipped.
func (c *OrderFinalizedConsumer) process(ctx context.Context, msg kafka.Message) error {
	fields := []zap.Field{
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.ByteString("key", msg.Key),
	}

	eventType := headerValue(msg, HeaderEventType)
	if eventType == "" {
		eventType = stock.EventTypeOrderFinalized
	}
	if eventType != stock.EventTypeOrderFinalized {
		c.logger.Debug("Ignoring message", append(fields, zap.String("event_type", eventType))...)
		return nil
	}

	decoded, err := c.serializer.Deserialize(eventType, msg.Value)
	if err != nil {
		c.logger.Error("Dropping undecodable message", append(fields, zap.Error(err))...)
		return nil
	}

	backoff := c.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err = c.handler.Handle(ctx, decoded)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(err) || attempt >= c.config.MaxRetries {
			c.logger.Error("Giving up on order message",
				append(fields,
					zap.String("order_reference", decoded.AggregateID()),
					zap.Int("attempts", attempt+1),
					zap.Error(err),
				)...,
			)
			return nil
		}

		c.logger.Warn("Order message failed, retrying",
			append(fields, zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))...,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// retryable treats unknown errors as transient; only validation failures are final
func retryable(err error) bool {
	switch stock.KindOf(err) {
	case stock.KindInvalid, stock.KindInvalidQuantity, stock.KindNotFound:
		return false
	}
	return true
}
