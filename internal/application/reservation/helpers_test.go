package reservation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/lock"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) OfType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type fixture struct {
	store   *memory.Store
	locker  *lock.KeyedLocker
	clock   *fakeClock
	events  *recordingPublisher
	manager *reservation.Manager
	stock   *reservation.StockService
}

func newFixture(t *testing.T, cfg reservation.Config) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		locker: lock.NewKeyedLocker(),
		clock:  &fakeClock{now: testNow},
		events: &recordingPublisher{},
	}
	logger := zap.NewNop()
	f.manager = reservation.NewManager(f.store.StockRepo(), f.store.ReservationRepo(), f.store, f.locker, cfg, logger)
	f.manager.SetClock(f.clock.Now)
	f.manager.SetEventPublisher(f.events)
	f.stock = reservation.NewStockService(f.store.StockRepo(), f.store.ReservationRepo(), f.store, f.locker, cfg.LockWait, logger)
	f.stock.SetEventPublisher(f.events)
	return f
}

func (f *fixture) seed(t *testing.T, sku stock.SKU, onHand, lowStock int64) {
	t.Helper()
	_, err := f.stock.CreateStock(context.Background(), reservation.CreateStockCommand{
		SKU: sku, OnHand: onHand, LowStockThreshold: lowStock,
	})
	require.NoError(t, err)
}

func (f *fixture) reserve(t *testing.T, sku stock.SKU, qty int64) *reservation.ReserveResult {
	t.Helper()
	result, err := f.manager.Reserve(context.Background(), reservation.ReserveCommand{SKU: sku, Quantity: qty, Holder: "cart-1"})
	require.NoError(t, err)
	return result
}

func (f *fixture) levels(t *testing.T, sku stock.SKU) stock.Levels {
	t.Helper()
	levels, err := f.manager.GetLevels(context.Background(), sku)
	require.NoError(t, err)
	return levels
}

// assertLedger checks that reserved equals the total of open holds for every SKU
func (f *fixture) assertLedger(t require.TestingT) {
	report, err := f.stock.Audit(context.Background())
	require.NoError(t, err)
	require.True(t, report.Consistent, "drifted: %+v", report.Drifted)
}
