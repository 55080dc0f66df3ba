package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweeper_ExpiresDueReservations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.Config{TTL: time.Minute})
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 20, 0)

	for i := 0; i < 5; i++ {
		f.reserve(t, sku, 2)
	}
	f.clock.Advance(30 * time.Second)
	fresh := f.reserve(t, sku, 3)

	sweeper := reservation.NewSweeper(f.manager, f.store.ReservationRepo(), 2, zap.NewNop())

	pending, err := sweeper.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	f.clock.Advance(45 * time.Second)
	pending, err = sweeper.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pending)

	stats, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.TotalDue)
	assert.Equal(t, 5, stats.Expired)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, stock.Levels{OnHand: 20, Reserved: 3}, f.levels(t, sku))
	assert.Len(t, f.events.OfType(stock.EventTypeReservationExpired), 5)

	stats, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDue)

	stored, err := f.manager.GetReservation(ctx, fresh.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, stock.ReservationStatusOpen, stored.Status)
	f.assertLedger(t)
}

func TestSweeper_ResumesAfterRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.Config{TTL: time.Minute})
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	held := f.reserve(t, sku, 4)

	// a new manager over the same storage plays the restarted process
	restarted := reservation.NewManager(f.store.StockRepo(), f.store.ReservationRepo(), f.store, f.locker, reservation.Config{TTL: time.Minute}, nil)
	restarted.SetClock(func() time.Time { return testNow.Add(time.Hour) })

	stats, err := reservation.NewSweeper(restarted, f.store.ReservationRepo(), 0, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Expired)

	stored, err := restarted.GetReservation(ctx, held.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, stock.ReservationStatusExpired, stored.Status)
	assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, sku))
}

func TestSweeper_SkipsHoldsResolvedMeanwhile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.Config{TTL: time.Minute})
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	held := f.reserve(t, sku, 4)
	f.clock.Advance(2 * time.Minute)

	_, err := f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"})
	require.NoError(t, err)

	outcome, err := f.manager.Expire(ctx, held.ReservationID)
	assert.Nil(t, outcome)
	terminal, ok := stock.AsAlreadyTerminal(err)
	require.True(t, ok)
	assert.Equal(t, stock.ReservationStatusCommitted, terminal.Outcome.Status)
	assert.Equal(t, stock.Levels{OnHand: 6}, f.levels(t, sku))
}

func TestSweeper_CancelledContextStopsEarly(t *testing.T) {
	f := newFixture(t, reservation.Config{TTL: time.Minute})
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	f.reserve(t, sku, 1)
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := reservation.NewSweeper(f.manager, f.store.ReservationRepo(), 10, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Expired)
	assert.Equal(t, int64(1), f.levels(t, sku).Reserved)
}
