package reservation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Manager owns the reservation lifecycle. Every ledger mutation runs under
// the SKU's lock and inside one transaction with the reservation write, so
// reserved always equals the sum of open holds.
type Manager struct {
	stockRepo       stock.StockRepository
	reservationRepo stock.ReservationRepository
	txScope         TransactionScope
	locker          SKULocker
	eventPublisher  shared.EventPublisher
	metrics         *telemetry.ReservationMetrics
	config          Config
	logger          *zap.Logger
	now             func() time.Time
}

// NewManager creates a new Manager
func NewManager(
	stockRepo stock.StockRepository,
	reservationRepo stock.ReservationRepository,
	txScope TransactionScope,
	locker SKULocker,
	cfg Config,
	logger *zap.Logger,
) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		stockRepo:       stockRepo,
		reservationRepo: reservationRepo,
		txScope:         txScope,
		locker:          locker,
		config:          cfg.withDefaults(),
		logger:          logger,
		now:             time.Now,
	}
}

// SetEventPublisher sets the publisher for reservation events
func (m *Manager) SetEventPublisher(publisher shared.EventPublisher) {
	m.eventPublisher = publisher
}

// SetMetrics sets the metrics collector
func (m *Manager) SetMetrics(metrics *telemetry.ReservationMetrics) {
	m.metrics = metrics
}

// SetClock overrides the time source
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.config
}

// GetLevels returns on-hand, reserved and available for a SKU
func (m *Manager) GetLevels(ctx context.Context, sku stock.SKU) (stock.Levels, error) {
	return m.stockRepo.GetLevels(ctx, sku)
}

// CheckAvailability answers whether quantity could be reserved right now.
// It takes no lock and changes nothing.
func (m *Manager) CheckAvailability(ctx context.Context, sku stock.SKU, quantity int64) (*Availability, error) {
	if sku.IsZero() {
		return nil, stock.ErrInvalidSKU
	}
	if quantity <= 0 {
		return nil, stock.ErrInvalidQuantity
	}

	record, err := m.stockRepo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	available := record.Available()
	sellable := record.IsSellable()
	return &Availability{
		SKU:               sku,
		AvailableQuantity: available,
		RequestedQuantity: quantity,
		IsAvailable:       sellable && available > 0,
		CanFulfill:        sellable && available >= quantity,
		Status:            record.Status,
		LowStockThreshold: record.LowStockThreshold,
		CheckedAt:         m.now(),
	}, nil
}

// Reserve places a hold of cmd.Quantity units for cmd.Holder.
// On InsufficientStock nothing is persisted and the error carries the
// quantity that was available.
func (m *Manager) Reserve(ctx context.Context, cmd ReserveCommand) (result *ReserveResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "reserve")
	defer span.End()
	defer m.observe(ctx, span, telemetry.OperationReserve, m.now(), &err)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSKU, cmd.SKU.String(),
		telemetry.SpanAttrQuantity, cmd.Quantity,
		telemetry.SpanAttrHolder, cmd.Holder,
	)

	if err := validateReserve(cmd); err != nil {
		return nil, err
	}

	unlock, err := m.acquire(ctx, cmd.SKU)
	if err != nil {
		return nil, err
	}
	defer unlock()

	reservation, err := stock.NewReservation(cmd.SKU, cmd.Quantity, cmd.Holder, m.config.TTL, m.now())
	if err != nil {
		return nil, err
	}

	var (
		levels    stock.Levels
		threshold int64
	)
	err = m.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		record, err := repos.StockRepo().FindBySKU(ctx, cmd.SKU)
		if err != nil {
			return err
		}
		if !record.IsSellable() {
			return stock.ErrStockDiscontinued
		}
		threshold = record.LowStockThreshold

		levels, err = repos.StockRepo().AdjustReserved(ctx, cmd.SKU, cmd.Quantity)
		if err != nil {
			return err
		}
		return repos.ReservationRepo().Create(ctx, reservation)
	})
	if err != nil {
		m.logger.Debug("Reserve rejected",
			zap.String("sku", cmd.SKU.String()),
			zap.Int64("quantity", cmd.Quantity),
			zap.String("holder", cmd.Holder),
			zap.Error(err),
		)
		return nil, err
	}

	events := []shared.DomainEvent{stock.NewReservationCreatedEvent(reservation)}
	before := stock.Levels{OnHand: levels.OnHand, Reserved: levels.Reserved - cmd.Quantity}
	if stock.CrossedLowStock(before, levels, threshold) {
		events = append(events, stock.NewStockBelowThresholdEvent(cmd.SKU, levels.Available(), threshold))
	}
	m.publish(ctx, events...)

	if m.metrics != nil {
		m.metrics.RecordReserved(ctx, cmd.SKU.ProductID, cmd.Quantity)
	}

	m.logger.Info("Reservation created",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("sku", cmd.SKU.String()),
		zap.Int64("quantity", cmd.Quantity),
		zap.Time("expires_at", reservation.ExpiresAt),
	)

	return &ReserveResult{
		ReservationID: reservation.ID,
		SKU:           reservation.SKU,
		Quantity:      reservation.Quantity,
		Holder:        reservation.Holder,
		ExpiresAt:     reservation.ExpiresAt,
		Available:     levels.Available(),
	}, nil
}

// Release gives an open hold back to stock. A reservation that is no longer
// open yields *stock.AlreadyTerminalError with its stored outcome and the
// ledger is not touched.
func (m *Manager) Release(ctx context.Context, cmd ReleaseCommand) (outcome *stock.Outcome, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "release")
	defer span.End()
	defer m.observe(ctx, span, telemetry.OperationRelease, m.now(), &err)
	telemetry.SetAttribute(span, telemetry.SpanAttrReservationID, cmd.ReservationID.String())

	reservation, err := m.load(ctx, cmd.ReservationID, cmd.SKU, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	if !reservation.IsOpen() {
		return nil, &stock.AlreadyTerminalError{Outcome: reservation.Outcome()}
	}

	unlock, err := m.acquire(ctx, reservation.SKU)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = m.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		current, err := repos.ReservationRepo().FindByID(ctx, reservation.ID)
		if err != nil {
			return err
		}
		if err := current.Release(m.now()); err != nil {
			return err
		}
		if err := repos.ReservationRepo().Transition(ctx, current, stock.ReservationStatusOpen); err != nil {
			return err
		}
		if _, err := repos.StockRepo().AdjustReserved(ctx, current.SKU, -current.Quantity); err != nil {
			return err
		}
		reservation = current
		return nil
	})
	if err != nil {
		return nil, m.settleConflict(ctx, reservation.ID, err)
	}

	m.publish(ctx, stock.NewReservationReleasedEvent(reservation))
	m.logger.Info("Reservation released",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("sku", reservation.SKU.String()),
		zap.Int64("quantity", reservation.Quantity),
	)

	result := reservation.Outcome()
	return &result, nil
}

// Commit converts a hold into a permanent deduction tied to an order.
//
// An open hold inside its TTL always commits. Past the TTL the late commit
// policy applies: with LateCommitRevalidate a still-open hold commits as
// usual and an expired one commits only if current availability covers it;
// with LateCommitReject both fail with ErrReservationExpired. A failed late
// commit publishes FulfillmentFailed for the compensation flow.
func (m *Manager) Commit(ctx context.Context, cmd CommitCommand) (outcome *stock.Outcome, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "commit")
	defer span.End()
	defer m.observe(ctx, span, telemetry.OperationCommit, m.now(), &err)
	telemetry.SetAttributes(span,
		telemetry.SpanAttrReservationID, cmd.ReservationID.String(),
		telemetry.SpanAttrOrderReference, cmd.OrderReference,
	)

	orderReference := strings.TrimSpace(cmd.OrderReference)
	if orderReference == "" {
		return nil, stock.ErrOrderReferenceRequired
	}

	reservation, err := m.load(ctx, cmd.ReservationID, cmd.SKU, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	if reservation.Status == stock.ReservationStatusCommitted || reservation.Status == stock.ReservationStatusReleased {
		return nil, &stock.AlreadyTerminalError{Outcome: reservation.Outcome()}
	}

	unlock, err := m.acquire(ctx, reservation.SKU)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		late      bool
		levels    stock.Levels
		threshold int64
	)
	err = m.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		current, err := repos.ReservationRepo().FindByID(ctx, reservation.ID)
		if err != nil {
			return err
		}
		reservation = current

		now := m.now()
		from := current.Status
		late = from == stock.ReservationStatusExpired || (from == stock.ReservationStatusOpen && current.IsPastDue(now))
		if late && m.config.LateCommit == LateCommitReject {
			return stock.ErrReservationExpired
		}
		if err := current.Commit(orderReference, now); err != nil {
			return err
		}
		if err := repos.ReservationRepo().Transition(ctx, current, from); err != nil {
			return err
		}

		record, err := repos.StockRepo().FindBySKU(ctx, current.SKU)
		if err != nil {
			return err
		}
		threshold = record.LowStockThreshold

		// an open hold still owns its units in reserved; an expired one gave them back
		levels, err = repos.StockRepo().AdjustOnHand(ctx, current.SKU, -current.Quantity, from == stock.ReservationStatusOpen)
		if err != nil {
			return err
		}
		_, err = repos.StockRepo().SyncStatus(ctx, current.SKU)
		return err
	})
	if err != nil {
		err = m.settleConflict(ctx, reservation.ID, err)
		if late {
			m.reportFulfillmentFailure(ctx, orderReference, reservation, err)
		}
		return nil, err
	}

	if late && reservation.Status == stock.ReservationStatusCommitted {
		before := stock.Levels{OnHand: levels.OnHand + reservation.Quantity, Reserved: levels.Reserved}
		if stock.CrossedLowStock(before, levels, threshold) {
			m.publish(ctx, stock.NewStockBelowThresholdEvent(reservation.SKU, levels.Available(), threshold))
		}
	}
	m.publish(ctx, stock.NewReservationCommittedEvent(reservation))

	if m.metrics != nil {
		m.metrics.RecordCommitted(ctx, reservation.SKU.ProductID, reservation.Quantity, reservation.WasLate())
	}

	m.logger.Info("Reservation committed",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("sku", reservation.SKU.String()),
		zap.Int64("quantity", reservation.Quantity),
		zap.String("order_reference", orderReference),
		zap.Bool("late", reservation.WasLate()),
		zap.Int64("on_hand", levels.OnHand),
	)

	result := reservation.Outcome()
	return &result, nil
}

// Expire moves an open, past-due hold to expired and returns its units to
// stock. Holds that are not yet due fail with stock.ErrNotYetDue.
func (m *Manager) Expire(ctx context.Context, id uuid.UUID) (outcome *stock.Outcome, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reservation", "expire")
	defer span.End()
	defer m.observe(ctx, span, telemetry.OperationExpire, m.now(), &err)
	telemetry.SetAttribute(span, telemetry.SpanAttrReservationID, id.String())

	reservation, err := m.reservationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !reservation.IsOpen() {
		return nil, &stock.AlreadyTerminalError{Outcome: reservation.Outcome()}
	}

	unlock, err := m.acquire(ctx, reservation.SKU)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = m.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		current, err := repos.ReservationRepo().FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := current.Expire(m.now()); err != nil {
			return err
		}
		if err := repos.ReservationRepo().Transition(ctx, current, stock.ReservationStatusOpen); err != nil {
			return err
		}
		if _, err := repos.StockRepo().AdjustReserved(ctx, current.SKU, -current.Quantity); err != nil {
			return err
		}
		reservation = current
		return nil
	})
	if err != nil {
		return nil, m.settleConflict(ctx, id, err)
	}

	m.publish(ctx, stock.NewReservationExpiredEvent(reservation))
	m.logger.Debug("Reservation expired",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("sku", reservation.SKU.String()),
		zap.Int64("quantity", reservation.Quantity),
	)

	result := reservation.Outcome()
	return &result, nil
}

// GetReservation returns a reservation by id
func (m *Manager) GetReservation(ctx context.Context, id uuid.UUID) (*stock.Reservation, error) {
	return m.reservationRepo.FindByID(ctx, id)
}

func validateReserve(cmd ReserveCommand) error {
	if cmd.SKU.IsZero() {
		return stock.ErrInvalidSKU
	}
	if cmd.Quantity <= 0 {
		return stock.ErrInvalidQuantity
	}
	if strings.TrimSpace(cmd.Holder) == "" {
		return stock.ErrHolderRequired
	}
	return nil
}

// load fetches a reservation and checks the optional SKU and quantity the caller sent along
func (m *Manager) load(ctx context.Context, id uuid.UUID, sku stock.SKU, quantity int64) (*stock.Reservation, error) {
	if id == uuid.Nil {
		return nil, stock.ErrReservationNotFound
	}
	if quantity < 0 {
		return nil, stock.ErrInvalidQuantity
	}

	reservation, err := m.reservationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sku.IsZero() && sku != reservation.SKU {
		return nil, stock.ErrSKUMismatch
	}
	if quantity != 0 && quantity != reservation.Quantity {
		return nil, stock.ErrInvalidQuantity
	}
	return reservation, nil
}

// acquire takes the SKU lock within the configured wait, or fails with ErrBusy
func (m *Manager) acquire(ctx context.Context, sku stock.SKU) (func(), error) {
	start := time.Now()
	unlock, err := m.locker.Acquire(ctx, lockKey(sku), m.config.LockWait)
	waited := time.Since(start)
	if m.metrics != nil {
		m.metrics.RecordLockWait(ctx, waited, err == nil)
	}
	telemetry.AddEvent(trace.SpanFromContext(ctx), "sku_lock",
		telemetry.SpanAttrSKU, sku.String(),
		"acquired", err == nil,
		"waited_ms", waited.Milliseconds(),
	)
	if err != nil {
		m.logger.Warn("SKU lock not acquired",
			zap.String("sku", sku.String()),
			zap.Duration("waited", waited),
			zap.Error(err),
		)
		return nil, stock.ErrBusy
	}
	return unlock, nil
}

// settleConflict turns a lost status race into the winner's stored outcome
func (m *Manager) settleConflict(ctx context.Context, id uuid.UUID, err error) error {
	if !errors.Is(err, shared.ErrConcurrencyConflict) {
		return err
	}
	stored, findErr := m.reservationRepo.FindByID(ctx, id)
	if findErr != nil {
		return err
	}
	if stored.IsOpen() {
		return err
	}
	return &stock.AlreadyTerminalError{Outcome: stored.Outcome()}
}

func (m *Manager) reportFulfillmentFailure(ctx context.Context, orderReference string, reservation *stock.Reservation, err error) {
	var (
		available int64
		reason    string
	)
	switch stock.KindOf(err) {
	case stock.KindInsufficientStock:
		if insufficient, ok := stock.AsInsufficientStock(err); ok {
			available = insufficient.Available
		}
		reason = "stock no longer available after hold expired"
	case stock.KindExpired:
		reason = "hold expired before commit"
	default:
		return
	}

	m.logger.Warn("Late commit failed, compensation required",
		zap.String("reservation_id", reservation.ID.String()),
		zap.String("order_reference", orderReference),
		zap.String("sku", reservation.SKU.String()),
		zap.Int64("quantity", reservation.Quantity),
		zap.Int64("available", available),
	)
	m.publish(ctx, stock.NewFulfillmentFailedEvent(orderReference, reservation.Line(), available, reason))
}

func (m *Manager) publish(ctx context.Context, events ...shared.DomainEvent) {
	if m.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := m.eventPublisher.Publish(ctx, events...); err != nil {
		m.logger.Warn("Failed to publish reservation events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

// observe records the span status and operation metrics once the call returns
func (m *Manager) observe(ctx context.Context, span trace.Span, operation string, start time.Time, errp *error) {
	err := *errp
	outcome := outcomeOf(err)

	telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, outcome)
	if stock.KindOf(err) == stock.KindInternal {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetOK(span)
	}

	if m.metrics != nil {
		m.metrics.RecordOperation(ctx, operation, outcome, m.now().Sub(start))
	}
}
