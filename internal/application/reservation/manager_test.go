package reservation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestManager_ReserveCommitScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)

	first := f.reserve(t, sku, 7)
	assert.Equal(t, int64(3), first.Available)
	assert.Equal(t, testNow.Add(reservation.DefaultTTL), first.ExpiresAt)

	_, err := f.manager.Reserve(ctx, reservation.ReserveCommand{SKU: sku, Quantity: 5, Holder: "cart-2"})
	insufficient, ok := stock.AsInsufficientStock(err)
	require.True(t, ok, "expected InsufficientStock, got %v", err)
	assert.Equal(t, int64(3), insufficient.Available)
	assert.Equal(t, stock.Levels{OnHand: 10, Reserved: 7}, f.levels(t, sku))

	outcome, err := f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: first.ReservationID, OrderReference: "order-1"})
	require.NoError(t, err)
	assert.Equal(t, stock.ReservationStatusCommitted, outcome.Status)
	assert.Equal(t, "order-1", outcome.OrderReference)
	assert.False(t, outcome.Late)
	assert.Equal(t, stock.Levels{OnHand: 3, Reserved: 0}, f.levels(t, sku))

	assert.Len(t, f.events.OfType(stock.EventTypeReservationCreated), 1)
	assert.Len(t, f.events.OfType(stock.EventTypeReservationCommitted), 1)
	f.assertLedger(t)
}

func TestManager_ReserveValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)

	tests := []struct {
		name string
		cmd  reservation.ReserveCommand
		want stock.ErrorKind
	}{
		{"zero quantity", reservation.ReserveCommand{SKU: sku, Quantity: 0, Holder: "h"}, stock.KindInvalidQuantity},
		{"negative quantity", reservation.ReserveCommand{SKU: sku, Quantity: -2, Holder: "h"}, stock.KindInvalidQuantity},
		{"missing sku", reservation.ReserveCommand{Quantity: 1, Holder: "h"}, stock.KindInvalid},
		{"missing holder", reservation.ReserveCommand{SKU: sku, Quantity: 1, Holder: "  "}, stock.KindInvalid},
		{"unknown sku", reservation.ReserveCommand{SKU: stock.MustSKU("nope", ""), Quantity: 1, Holder: "h"}, stock.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := f.manager.Reserve(ctx, tt.cmd)
			assert.Nil(t, result)
			assert.Equal(t, tt.want, stock.KindOf(err))
		})
	}
	assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, sku))
}

func TestManager_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "red")
	f.seed(t, sku, 10, 0)
	held := f.reserve(t, sku, 4)

	outcome, err := f.manager.Release(ctx, reservation.ReleaseCommand{ReservationID: held.ReservationID, SKU: sku, Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, stock.ReservationStatusReleased, outcome.Status)
	assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, sku))

	_, err = f.manager.Release(ctx, reservation.ReleaseCommand{ReservationID: held.ReservationID})
	terminal, ok := stock.AsAlreadyTerminal(err)
	require.True(t, ok)
	assert.Equal(t, stock.ReservationStatusReleased, terminal.Outcome.Status)
	assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, sku))

	_, err = f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"})
	terminal, ok = stock.AsAlreadyTerminal(err)
	require.True(t, ok)
	assert.Equal(t, stock.ReservationStatusReleased, terminal.Outcome.Status)
	assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, sku))

	assert.Len(t, f.events.OfType(stock.EventTypeReservationReleased), 1)
}

func TestManager_ReleaseChecksCallerDetails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	held := f.reserve(t, sku, 4)

	_, err := f.manager.Release(ctx, reservation.ReleaseCommand{ReservationID: uuid.New()})
	assert.ErrorIs(t, err, stock.ErrReservationNotFound)

	_, err = f.manager.Release(ctx, reservation.ReleaseCommand{ReservationID: held.ReservationID, SKU: stock.MustSKU("B", "")})
	assert.ErrorIs(t, err, stock.ErrSKUMismatch)

	_, err = f.manager.Release(ctx, reservation.ReleaseCommand{ReservationID: held.ReservationID, Quantity: 3})
	assert.ErrorIs(t, err, stock.ErrInvalidQuantity)

	assert.Equal(t, int64(4), f.levels(t, sku).Reserved)
}

func TestManager_CommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	held := f.reserve(t, sku, 4)

	cmd := reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"}
	_, err := f.manager.Commit(ctx, cmd)
	require.NoError(t, err)

	_, err = f.manager.Commit(ctx, cmd)
	terminal, ok := stock.AsAlreadyTerminal(err)
	require.True(t, ok)
	assert.Equal(t, stock.ReservationStatusCommitted, terminal.Outcome.Status)
	assert.Equal(t, "order-1", terminal.Outcome.OrderReference)
	assert.Equal(t, stock.Levels{OnHand: 6}, f.levels(t, sku))

	_, err = f.manager.Release(ctx, reservation.ReleaseCommand{ReservationID: held.ReservationID})
	_, ok = stock.AsAlreadyTerminal(err)
	assert.True(t, ok)
	assert.Equal(t, stock.Levels{OnHand: 6}, f.levels(t, sku))

	_, err = f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID})
	assert.ErrorIs(t, err, stock.ErrOrderReferenceRequired)
}

func TestManager_LateCommitRevalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("open past due commits late", func(t *testing.T) {
		f := newFixture(t, reservation.Config{TTL: time.Minute})
		sku := stock.MustSKU("A", "")
		f.seed(t, sku, 10, 0)
		held := f.reserve(t, sku, 4)

		f.clock.Advance(2 * time.Minute)
		outcome, err := f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"})
		require.NoError(t, err)
		assert.True(t, outcome.Late)
		assert.Equal(t, stock.Levels{OnHand: 6}, f.levels(t, sku))
	})

	t.Run("expired hold commits when stock still fits", func(t *testing.T) {
		f := newFixture(t, reservation.Config{TTL: time.Minute})
		sku := stock.MustSKU("A", "")
		f.seed(t, sku, 10, 0)
		held := f.reserve(t, sku, 4)

		f.clock.Advance(2 * time.Minute)
		_, err := f.manager.Expire(ctx, held.ReservationID)
		require.NoError(t, err)
		assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, sku))

		outcome, err := f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"})
		require.NoError(t, err)
		assert.True(t, outcome.Late)
		assert.Equal(t, stock.ReservationStatusCommitted, outcome.Status)
		assert.Equal(t, stock.Levels{OnHand: 6}, f.levels(t, sku))
		f.assertLedger(t)
	})

	t.Run("expired hold fails when stock is gone", func(t *testing.T) {
		f := newFixture(t, reservation.Config{TTL: time.Minute})
		sku := stock.MustSKU("A", "")
		f.seed(t, sku, 5, 0)
		held := f.reserve(t, sku, 4)

		f.clock.Advance(2 * time.Minute)
		_, err := f.manager.Expire(ctx, held.ReservationID)
		require.NoError(t, err)
		f.reserve(t, sku, 3)

		_, err = f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"})
		insufficient, ok := stock.AsInsufficientStock(err)
		require.True(t, ok, "expected InsufficientStock, got %v", err)
		assert.Equal(t, int64(2), insufficient.Available)

		stored, err := f.manager.GetReservation(ctx, held.ReservationID)
		require.NoError(t, err)
		assert.Equal(t, stock.ReservationStatusExpired, stored.Status)
		assert.Equal(t, stock.Levels{OnHand: 5, Reserved: 3}, f.levels(t, sku))

		failed := f.events.OfType(stock.EventTypeFulfillmentFailed)
		require.Len(t, failed, 1)
		event := failed[0].(*stock.FulfillmentFailedEvent)
		assert.Equal(t, "order-1", event.OrderReference)
		assert.Equal(t, int64(2), event.Available)
		f.assertLedger(t)
	})
}

func TestManager_LateCommitReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.Config{TTL: time.Minute, LateCommit: reservation.LateCommitReject})
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	held := f.reserve(t, sku, 4)

	f.clock.Advance(time.Minute)
	_, err := f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"})
	assert.ErrorIs(t, err, stock.ErrReservationExpired)
	assert.Equal(t, stock.KindExpired, stock.KindOf(err))

	stored, err := f.manager.GetReservation(ctx, held.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, stock.ReservationStatusOpen, stored.Status)
	assert.Equal(t, stock.Levels{OnHand: 10, Reserved: 4}, f.levels(t, sku))
	assert.Len(t, f.events.OfType(stock.EventTypeFulfillmentFailed), 1)

	_, err = f.manager.Expire(ctx, held.ReservationID)
	require.NoError(t, err)
	_, err = f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: held.ReservationID, OrderReference: "order-1"})
	assert.ErrorIs(t, err, stock.ErrReservationExpired)
	assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, sku))
}

func TestManager_ExpireNotYetDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.Config{TTL: time.Minute})
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	held := f.reserve(t, sku, 4)

	_, err := f.manager.Expire(ctx, held.ReservationID)
	assert.ErrorIs(t, err, stock.ErrNotYetDue)
	assert.Equal(t, int64(4), f.levels(t, sku).Reserved)
}

func TestManager_BusyWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.Config{LockWait: 30 * time.Millisecond})
	a, b := stock.MustSKU("A", ""), stock.MustSKU("B", "")
	f.seed(t, a, 10, 0)
	f.seed(t, b, 10, 0)

	unlock, err := f.locker.Acquire(ctx, "stock:A", time.Second)
	require.NoError(t, err)
	defer unlock()

	_, err = f.manager.Reserve(ctx, reservation.ReserveCommand{SKU: a, Quantity: 1, Holder: "h"})
	assert.ErrorIs(t, err, stock.ErrBusy)
	assert.True(t, stock.KindOf(err).Retryable())
	assert.Equal(t, stock.Levels{OnHand: 10}, f.levels(t, a))

	// other SKUs are unaffected
	f.reserve(t, b, 1)
}

func TestManager_ConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "")
	const onHand, qty, workers = 10, 3, 20
	f.seed(t, sku, onHand, 0)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Reserve(ctx, reservation.ReserveCommand{SKU: sku, Quantity: qty, Holder: "h"})
			mu.Lock()
			defer mu.Unlock()
			switch stock.KindOf(err) {
			case stock.KindNone:
				succeeded++
			case stock.KindInsufficientStock:
				insufficient++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, onHand/qty, succeeded)
	assert.Equal(t, workers-onHand/qty, insufficient)
	assert.Equal(t, stock.Levels{OnHand: onHand, Reserved: (onHand / qty) * qty}, f.levels(t, sku))
	f.assertLedger(t)
}

func TestManager_BelowThresholdPublishedOnce(t *testing.T) {
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 5)

	f.reserve(t, sku, 4)
	assert.Empty(t, f.events.OfType(stock.EventTypeStockBelowThreshold))

	f.reserve(t, sku, 2)
	f.reserve(t, sku, 1)
	events := f.events.OfType(stock.EventTypeStockBelowThreshold)
	require.Len(t, events, 1)
	assert.Equal(t, int64(4), events[0].(*stock.StockBelowThresholdEvent).Available)
}

func TestManager_CheckAvailability(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, reservation.DefaultConfig())
	sku := stock.MustSKU("A", "")
	f.seed(t, sku, 10, 0)
	f.reserve(t, sku, 7)

	availability, err := f.manager.CheckAvailability(ctx, sku, 3)
	require.NoError(t, err)
	assert.True(t, availability.CanFulfill)
	assert.Equal(t, int64(3), availability.AvailableQuantity)

	availability, err = f.manager.CheckAvailability(ctx, sku, 4)
	require.NoError(t, err)
	assert.False(t, availability.CanFulfill)
	assert.True(t, availability.IsAvailable)

	_, err = f.manager.CheckAvailability(ctx, sku, 0)
	assert.ErrorIs(t, err, stock.ErrInvalidQuantity)

	_, err = f.manager.CheckAvailability(ctx, stock.MustSKU("nope", ""), 1)
	assert.Equal(t, stock.KindNotFound, stock.KindOf(err))

	assert.Equal(t, stock.Levels{OnHand: 10, Reserved: 7}, f.levels(t, sku))
}

// TestManager_LedgerInvariants drives random operation sequences and checks
// the ledger after every step.
func TestManager_LedgerInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := newFixture(t, reservation.Config{TTL: time.Minute})
		sku := stock.MustSKU("A", "")
		onHand := rapid.Int64Range(0, 30).Draw(rt, "on_hand")
		f.seed(t, sku, onHand, 0)

		var ids []uuid.UUID
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0, 1:
				qty := rapid.Int64Range(1, 8).Draw(rt, "qty")
				before := f.levels(t, sku)
				result, err := f.manager.Reserve(ctx, reservation.ReserveCommand{SKU: sku, Quantity: qty, Holder: "h"})
				if before.Available() >= qty {
					require.NoError(rt, err)
					ids = append(ids, result.ReservationID)
				} else {
					insufficient, ok := stock.AsInsufficientStock(err)
					require.True(rt, ok)
					require.Equal(rt, before.Available(), insufficient.Available)
				}
			case 2:
				if len(ids) > 0 {
					id := ids[rapid.IntRange(0, len(ids)-1).Draw(rt, "release")]
					_, err := f.manager.Release(ctx, reservation.ReleaseCommand{ReservationID: id})
					require.Contains(rt, []stock.ErrorKind{stock.KindNone, stock.KindAlreadyTerminal}, stock.KindOf(err))
				}
			case 3:
				if len(ids) > 0 {
					id := ids[rapid.IntRange(0, len(ids)-1).Draw(rt, "commit")]
					_, err := f.manager.Commit(ctx, reservation.CommitCommand{ReservationID: id, OrderReference: "order"})
					require.Contains(rt, []stock.ErrorKind{stock.KindNone, stock.KindAlreadyTerminal, stock.KindInsufficientStock}, stock.KindOf(err))
				}
			case 4:
				f.clock.Advance(time.Duration(rapid.IntRange(0, 90).Draw(rt, "seconds")) * time.Second)
			case 5:
				sweeper := reservation.NewSweeper(f.manager, f.store.ReservationRepo(), 3, nil)
				stats, err := sweeper.Sweep(ctx)
				require.NoError(rt, err)
				require.Zero(rt, stats.Failed)
			}

			levels := f.levels(t, sku)
			require.True(rt, levels.Valid(), "levels out of range: %+v", levels)
			require.GreaterOrEqual(rt, levels.OnHand, int64(0))
			f.assertLedger(rt)
		}
	})
}
