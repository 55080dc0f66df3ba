package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const defaultHolderLimit = 100

// StockService administers stock records: stocking, restocking,
// thresholds, discontinuation and the reserved-counter audit. Mutations of
// on-hand go through the same per-SKU lock as the Manager.
type StockService struct {
	stockRepo       stock.StockRepository
	reservationRepo stock.ReservationRepository
	txScope         TransactionScope
	locker          SKULocker
	lockWait        time.Duration
	eventPublisher  shared.EventPublisher
	metrics         *telemetry.ReservationMetrics
	logger          *zap.Logger
	now             func() time.Time
}

// NewStockService creates a new StockService
func NewStockService(
	stockRepo stock.StockRepository,
	reservationRepo stock.ReservationRepository,
	txScope TransactionScope,
	locker SKULocker,
	lockWait time.Duration,
	logger *zap.Logger,
) *StockService {
	if lockWait <= 0 {
		lockWait = DefaultLockWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockService{
		stockRepo:       stockRepo,
		reservationRepo: reservationRepo,
		txScope:         txScope,
		locker:          locker,
		lockWait:        lockWait,
		logger:          logger,
		now:             time.Now,
	}
}

// SetEventPublisher sets the publisher for stock events
func (s *StockService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics sets the metrics collector
func (s *StockService) SetMetrics(metrics *telemetry.ReservationMetrics) {
	s.metrics = metrics
}

// CreateStock stocks a SKU for the first time
func (s *StockService) CreateStock(ctx context.Context, cmd CreateStockCommand) (*StockView, error) {
	record, err := stock.NewStockRecord(cmd.SKU, cmd.OnHand, cmd.ReorderThreshold, cmd.LowStockThreshold, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.stockRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("Stock record created",
		zap.String("sku", record.SKU.String()),
		zap.Int64("on_hand", record.OnHand),
	)
	view := ToStockView(record)
	return &view, nil
}

// GetStock returns a SKU's stock record
func (s *StockService) GetStock(ctx context.Context, sku stock.SKU) (*StockView, error) {
	record, err := s.stockRepo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	view := ToStockView(record)
	return &view, nil
}

// ListStock returns a page of stock records and the total count
func (s *StockService) ListStock(ctx context.Context, filter stock.StockFilter) ([]StockView, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	records, total, err := s.stockRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	views := make([]StockView, len(records))
	for i := range records {
		views[i] = ToStockView(&records[i])
	}
	return views, total, nil
}

// Restock increases on-hand stock. Out-of-stock records become active again;
// discontinued records cannot be restocked.
func (s *StockService) Restock(ctx context.Context, sku stock.SKU, quantity int64) (view *StockView, err error) {
	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordOperation(ctx, telemetry.OperationRestock, outcomeOf(err), s.now().Sub(start))
		}
	}()

	if quantity <= 0 {
		return nil, stock.ErrInvalidQuantity
	}

	unlock, err := s.acquire(ctx, sku)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var record *stock.StockRecord
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		record, err = repos.StockRepo().FindBySKU(ctx, sku)
		if err != nil {
			return err
		}
		if !record.IsSellable() {
			return stock.ErrStockDiscontinued
		}
		levels, err := repos.StockRepo().AdjustOnHand(ctx, sku, quantity, false)
		if err != nil {
			return err
		}
		status, err := repos.StockRepo().SyncStatus(ctx, sku)
		if err != nil {
			return err
		}
		record.ApplyLevels(levels, s.now())
		record.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, stock.NewStockRestockedEvent(sku, quantity, record.OnHand))
	s.logger.Info("Stock restocked",
		zap.String("sku", sku.String()),
		zap.Int64("quantity", quantity),
		zap.Int64("on_hand", record.OnHand),
	)
	result := ToStockView(record)
	return &result, nil
}

// Discontinue retires a SKU. Open holds stay valid and may still commit.
func (s *StockService) Discontinue(ctx context.Context, sku stock.SKU) (*StockView, error) {
	unlock, err := s.acquire(ctx, sku)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := s.stockRepo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if record.Status != stock.StockStatusDiscontinued {
		if err := record.Discontinue(s.now()); err != nil {
			return nil, err
		}
		if err := s.stockRepo.SaveSettings(ctx, record); err != nil {
			return nil, err
		}
		s.logger.Info("Stock discontinued", zap.String("sku", sku.String()))
	}
	view := ToStockView(record)
	return &view, nil
}

// UpdateThresholds replaces a SKU's reorder and low-stock thresholds
func (s *StockService) UpdateThresholds(ctx context.Context, cmd ThresholdsCommand) (*StockView, error) {
	unlock, err := s.acquire(ctx, cmd.SKU)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := s.stockRepo.FindBySKU(ctx, cmd.SKU)
	if err != nil {
		return nil, err
	}
	if err := record.SetThresholds(cmd.ReorderThreshold, cmd.LowStockThreshold, s.now()); err != nil {
		return nil, err
	}
	if err := s.stockRepo.SaveSettings(ctx, record); err != nil {
		return nil, err
	}
	view := ToStockView(record)
	return &view, nil
}

// GetReservation returns a reservation by id
func (s *StockService) GetReservation(ctx context.Context, id uuid.UUID) (*ReservationView, error) {
	r, err := s.reservationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := ToReservationView(r)
	return &view, nil
}

// ListReservationsByHolder returns a holder's most recent reservations
func (s *StockService) ListReservationsByHolder(ctx context.Context, holder string, limit int) ([]ReservationView, error) {
	if holder == "" {
		return nil, stock.ErrHolderRequired
	}
	if limit <= 0 || limit > defaultHolderLimit {
		limit = defaultHolderLimit
	}
	reservations, err := s.reservationRepo.FindByHolder(ctx, holder, limit)
	if err != nil {
		return nil, err
	}
	views := make([]ReservationView, len(reservations))
	for i := range reservations {
		views[i] = ToReservationView(&reservations[i])
	}
	return views, nil
}

// Audit compares every SKU's reserved counter with the total of its open
// reservations and lists the ones that disagree.
func (s *StockService) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{CheckedAt: s.now(), Drifted: make([]AuditEntry, 0)}

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		open, err := repos.ReservationRepo().SumOpen(ctx)
		if err != nil {
			return err
		}

		for page := 1; ; page++ {
			records, _, err := repos.StockRepo().FindAll(ctx, stock.StockFilter{Page: page, PageSize: 200})
			if err != nil {
				return err
			}
			for i := range records {
				r := &records[i]
				report.Checked++
				total := open[r.SKU]
				delete(open, r.SKU)
				if total != r.Reserved {
					report.Drifted = append(report.Drifted, AuditEntry{
						SKU: r.SKU, OnHand: r.OnHand, Reserved: r.Reserved, OpenTotal: total, Drift: r.Reserved - total,
					})
				}
			}
			if len(records) < 200 {
				break
			}
		}

		// open holds against SKUs that have no stock record at all
		for sku, total := range open {
			report.Drifted = append(report.Drifted, AuditEntry{SKU: sku, OpenTotal: total, Drift: -total})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Consistent = len(report.Drifted) == 0
	if !report.Consistent {
		s.logger.Error("Reserved counters drifted from open reservations",
			zap.Int("drifted", len(report.Drifted)),
			zap.Int("checked", report.Checked),
		)
	}
	return report, nil
}

// GetReservedUnits implements telemetry.StockMetricsProvider
func (s *StockService) GetReservedUnits(ctx context.Context) (int64, error) {
	open, err := s.reservationRepo.SumOpen(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, q := range open {
		total += q
	}
	return total, nil
}

// GetLowStockCount implements telemetry.StockMetricsProvider
func (s *StockService) GetLowStockCount(ctx context.Context) (int64, error) {
	_, total, err := s.stockRepo.FindAll(ctx, stock.StockFilter{LowStockOnly: true, Page: 1, PageSize: 1})
	return total, err
}

func (s *StockService) acquire(ctx context.Context, sku stock.SKU) (func(), error) {
	unlock, err := s.locker.Acquire(ctx, lockKey(sku), s.lockWait)
	if err != nil {
		s.logger.Warn("SKU lock not acquired", zap.String("sku", sku.String()), zap.Error(err))
		return nil, stock.ErrBusy
	}
	return unlock, nil
}

func (s *StockService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish stock events", zap.Error(err))
	}
}

func outcomeOf(err error) string {
	if kind := stock.KindOf(err); kind != stock.KindNone {
		return string(kind)
	}
	return "ok"
}

var _ telemetry.StockMetricsProvider = (*StockService)(nil)
