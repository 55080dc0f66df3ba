package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ReservationMetrics records reservation engine activity: operation outcomes,
// lock contention, sweeper throughput and periodic stock gauges.
type ReservationMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	operationsTotal   *Counter
	reservedUnits     *Counter
	committedUnits    *Counter
	expiredTotal      *Counter
	lockTimeoutsTotal *Counter
	operationDuration *Histogram
	lockWaitDuration  *Histogram

	outstandingReserved *Gauge
	lowStockCount       *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stockProvider StockMetricsProvider
}

// StockMetricsProvider supplies stock gauges for periodic collection without
// the telemetry layer depending on the stock domain.
type StockMetricsProvider interface {
	// GetReservedUnits returns the total reserved quantity across all SKUs
	GetReservedUnits(ctx context.Context) (int64, error)

	// GetLowStockCount returns how many SKUs are at or below their low-stock threshold
	GetLowStockCount(ctx context.Context) (int64, error)
}

// ReservationMetricsConfig holds configuration for reservation metrics.
type ReservationMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 1 minute
	StockProvider   StockMetricsProvider
}

// Operation names used as the operation attribute
const (
	OperationReserve = "reserve"
	OperationRelease = "release"
	OperationCommit  = "commit"
	OperationExpire  = "expire"
	OperationRestock = "restock"
)

// NewReservationMetrics creates a new ReservationMetrics instance.
func NewReservationMetrics(cfg ReservationMetricsConfig) (*ReservationMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rm := &ReservationMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		stockProvider: cfg.StockProvider,
	}

	var err error
	if rm.operationsTotal, err = NewCounter(cfg.Meter,
		"stockhold_reservation_operations_total",
		"Reservation operations by operation and outcome",
		"{operations}",
	); err != nil {
		return nil, err
	}
	if rm.reservedUnits, err = NewCounter(cfg.Meter,
		"stockhold_reserved_units_total",
		"Units placed on hold",
		"{units}",
	); err != nil {
		return nil, err
	}
	if rm.committedUnits, err = NewCounter(cfg.Meter,
		"stockhold_committed_units_total",
		"Units permanently deducted by commits",
		"{units}",
	); err != nil {
		return nil, err
	}
	if rm.expiredTotal, err = NewCounter(cfg.Meter,
		"stockhold_reservations_expired_total",
		"Reservations expired by the sweeper",
		"{reservations}",
	); err != nil {
		return nil, err
	}
	if rm.lockTimeoutsTotal, err = NewCounter(cfg.Meter,
		"stockhold_sku_lock_timeouts_total",
		"Per-SKU lock acquisitions that gave up and returned busy",
		"{timeouts}",
	); err != nil {
		return nil, err
	}
	if rm.operationDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stockhold_reservation_operation_duration_seconds",
		Description: "Duration of reservation operations",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if rm.lockWaitDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stockhold_sku_lock_wait_seconds",
		Description: "Time spent waiting for the per-SKU lock",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if rm.outstandingReserved, err = NewGauge(cfg.Meter,
		"stockhold_outstanding_reserved_units",
		"Units currently held by open reservations",
		"{units}",
	); err != nil {
		return nil, err
	}
	if rm.lowStockCount, err = NewGauge(cfg.Meter,
		"stockhold_low_stock_skus",
		"SKUs at or below their low-stock threshold",
		"{skus}",
	); err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordOperation records one operation with its outcome kind ("ok", "busy", ...).
func (rm *ReservationMetrics) RecordOperation(ctx context.Context, operation, outcome string, d time.Duration) {
	attrs := []attribute.KeyValue{
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	}
	rm.operationsTotal.Inc(ctx, attrs...)
	rm.operationDuration.RecordDuration(ctx, d, attrs...)
}

// RecordReserved counts units placed on hold
func (rm *ReservationMetrics) RecordReserved(ctx context.Context, productID string, quantity int64) {
	rm.reservedUnits.Add(ctx, quantity, AttrProductID.String(productID))
}

// RecordCommitted counts units deducted by a commit
func (rm *ReservationMetrics) RecordCommitted(ctx context.Context, productID string, quantity int64, late bool) {
	rm.committedUnits.Add(ctx, quantity, AttrProductID.String(productID), AttrLate.Bool(late))
}

// RecordExpired counts reservations expired by one sweep
func (rm *ReservationMetrics) RecordExpired(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	rm.expiredTotal.Add(ctx, int64(count))
}

// RecordLockWait records how long a caller waited for a SKU lock
func (rm *ReservationMetrics) RecordLockWait(ctx context.Context, d time.Duration, acquired bool) {
	rm.lockWaitDuration.RecordDuration(ctx, d, AttrAcquired.Bool(acquired))
	if !acquired {
		rm.lockTimeoutsTotal.Inc(ctx)
	}
}

// StartPeriodicCollection starts collecting stock gauges every interval.
// It is non-blocking; use Stop to end collection.
func (rm *ReservationMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	rm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go rm.runPeriodicCollection(ctx, interval)
	})
}

func (rm *ReservationMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rm.collectStockMetrics(ctx)

	for {
		select {
		case <-rm.stopChan:
			rm.logger.Info("Stopping periodic reservation metrics collection")
			return
		case <-ctx.Done():
			rm.logger.Info("Context cancelled, stopping periodic reservation metrics collection")
			return
		case <-ticker.C:
			rm.collectStockMetrics(ctx)
		}
	}
}

func (rm *ReservationMetrics) collectStockMetrics(ctx context.Context) {
	if rm.stockProvider == nil {
		rm.logger.Debug("No stock provider configured, skipping stock metrics collection")
		return
	}

	reserved, err := rm.stockProvider.GetReservedUnits(ctx)
	if err != nil {
		rm.logger.Warn("Failed to get reserved units", zap.Error(err))
	} else {
		rm.outstandingReserved.Record(ctx, reserved)
	}

	lowStock, err := rm.stockProvider.GetLowStockCount(ctx)
	if err != nil {
		rm.logger.Warn("Failed to get low stock count", zap.Error(err))
	} else {
		rm.lowStockCount.Record(ctx, lowStock)
	}
}

// Stop stops the periodic collection.
func (rm *ReservationMetrics) Stop() {
	rm.stopOnce.Do(func() {
		close(rm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewReservationMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
