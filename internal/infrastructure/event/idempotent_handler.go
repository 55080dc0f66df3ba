package event

import (
	"context"
	"sync/atomic"

	"github.com/shopcore/stockhold/internal/domain/shared"
	"go.uber.org/zap"
)

// KeyFunc derives the deduplication key for an event.
type KeyFunc func(e shared.DomainEvent) string

// DefaultKey keys an event by its business identity when it has one
// (an OrderFinalized event by its order reference) and by event ID otherwise.
// A republished order carrying a fresh event ID is still a duplicate.
func DefaultKey(e shared.DomainEvent) string {
	if k, ok := e.(interface{ IdempotencyKey() string }); ok {
		if key := k.IdempotencyKey(); key != "" {
			return key
		}
	}
	return e.EventID().String()
}

// IdempotencyStats counts what an IdempotentHandler did.
type IdempotencyStats struct {
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// IdempotentHandler runs the wrapped handler at most once per key within
// the configured TTL. A failed run forgets its key so a redelivery retries.
// When the store is unreachable the event is processed anyway: the
// reservation operations are themselves idempotent, a dropped order is not.
type IdempotentHandler struct {
	next    shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	keyFunc KeyFunc
	logger  *zap.Logger

	processed  atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

// IdempotentHandlerOption configures an IdempotentHandler.
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig overrides the default TTL and enabled flag.
func WithIdempotencyConfig(cfg shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = cfg }
}

// WithKeyFunc replaces DefaultKey.
func WithKeyFunc(fn KeyFunc) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.keyFunc = fn }
}

// NewIdempotentHandler wraps next.
func NewIdempotentHandler(next shared.EventHandler, store shared.IdempotencyStore, logger *zap.Logger, opts ...IdempotentHandlerOption) *IdempotentHandler {
	h := &IdempotentHandler{
		next:    next,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		keyFunc: DefaultKey,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the wrapped handler's event types.
func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle implements shared.EventHandler.
func (h *IdempotentHandler) Handle(ctx context.Context, e shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.next.Handle(ctx, e)
	}

	key := e.EventType() + ":" + h.keyFunc(e)
	log := h.logger.With(
		zap.String("idempotency_key", key),
		zap.String("event_id", e.EventID().String()),
	)

	fresh, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		log.Warn("Idempotency check failed, processing anyway", zap.Error(err))
	case !fresh:
		h.duplicates.Add(1)
		log.Info("Duplicate event skipped")
		return nil
	}

	if err := h.next.Handle(ctx, e); err != nil {
		h.failed.Add(1)
		if ferr := h.store.Forget(ctx, key); ferr != nil {
			log.Warn("Failed to forget idempotency key", zap.Error(ferr))
		}
		return err
	}
	h.processed.Add(1)
	return nil
}

// Stats returns a snapshot of the handler's counters.
func (h *IdempotentHandler) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed:  h.processed.Load(),
		Duplicates: h.duplicates.Load(),
		Failed:     h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
