package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"go.uber.org/zap"
)

// Alert types
const (
	AlertTypeLowStock   = "low_stock"
	AlertTypeOutOfStock = "out_of_stock"
)

// LowStockHandler handles StockBelowThreshold events and raises a stock
// alert, at most once per SKU within MinInterval.
type LowStockHandler struct {
	logger      *zap.Logger
	minInterval time.Duration
	now         func() time.Time

	mu        sync.Mutex
	lastAlert map[stock.SKU]time.Time
}

// NewLowStockHandler creates a new handler for stock below threshold events
func NewLowStockHandler(minInterval time.Duration, logger *zap.Logger) *LowStockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LowStockHandler{
		logger:      logger,
		minInterval: minInterval,
		now:         time.Now,
		lastAlert:   make(map[stock.SKU]time.Time),
	}
}

// EventTypes returns the event types this handler is interested in
func (h *LowStockHandler) EventTypes() []string {
	return []string{stock.EventTypeStockBelowThreshold}
}

// Handle processes a StockBelowThresholdEvent
func (h *LowStockHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	thresholdEvent, ok := event.(*stock.StockBelowThresholdEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", stock.EventTypeStockBelowThreshold),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			stock.EventTypeStockBelowThreshold, event.EventType())
	}

	if !h.shouldAlert(thresholdEvent.SKU) {
		h.logger.Debug("stock alert suppressed within interval",
			zap.String("sku", thresholdEvent.SKU.String()),
		)
		return nil
	}

	alertType := AlertTypeLowStock
	if thresholdEvent.Available <= 0 {
		alertType = AlertTypeOutOfStock
	}
	h.logger.Warn("stock below threshold detected",
		zap.String("sku", thresholdEvent.SKU.String()),
		zap.Int64("available", thresholdEvent.Available),
		zap.Int64("threshold", thresholdEvent.Threshold),
		zap.String("alert_type", alertType),
	)
	return nil
}

func (h *LowStockHandler) shouldAlert(sku stock.SKU) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if last, ok := h.lastAlert[sku]; ok && now.Sub(last) < h.minInterval {
		return false
	}
	h.lastAlert[sku] = now
	return true
}

var _ shared.EventHandler = (*LowStockHandler)(nil)
