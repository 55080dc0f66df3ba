package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

type reservationRepo struct {
	view *view
}

func (r reservationRepo) FindByID(_ context.Context, id uuid.UUID) (*stock.Reservation, error) {
	var found *stock.Reservation
	err := r.view.run(func(st *state, _ *journal) error {
		stored, ok := st.reservations[id]
		if !ok {
			return stock.ErrReservationNotFound
		}
		found = copyReservation(stored)
		return nil
	})
	return found, err
}

func (r reservationRepo) Create(_ context.Context, res *stock.Reservation) error {
	return r.view.run(func(st *state, j *journal) error {
		if _, exists := st.reservations[res.ID]; exists {
			return shared.ErrAlreadyExists
		}
		st.reservations[res.ID] = copyReservation(res)
		entry := dueEntry{ExpiresAt: res.ExpiresAt, ReservationID: res.ID}
		if res.IsOpen() {
			st.due.ReplaceOrInsert(entry)
		}
		j.record(func() {
			delete(st.reservations, res.ID)
			st.due.Delete(entry)
		})
		return nil
	})
}

func (r reservationRepo) Transition(_ context.Context, res *stock.Reservation, from stock.ReservationStatus) error {
	return r.view.run(func(st *state, j *journal) error {
		stored, ok := st.reservations[res.ID]
		if !ok {
			return stock.ErrReservationNotFound
		}
		if stored.Status != from {
			return shared.ErrConcurrencyConflict
		}

		prev := stored
		st.reservations[res.ID] = copyReservation(res)
		entry := dueEntry{ExpiresAt: prev.ExpiresAt, ReservationID: prev.ID}
		removed := false
		if prev.IsOpen() && !res.IsOpen() {
			_, removed = st.due.Delete(entry)
		}
		j.record(func() {
			st.reservations[res.ID] = prev
			if removed {
				st.due.ReplaceOrInsert(entry)
			}
		})
		return nil
	})
}

func (r reservationRepo) FindDue(_ context.Context, now time.Time, limit int) ([]stock.Reservation, error) {
	var due []stock.Reservation
	err := r.view.run(func(st *state, _ *journal) error {
		due = make([]stock.Reservation, 0)
		st.due.Ascend(func(entry dueEntry) bool {
			if entry.ExpiresAt.After(now) || (limit > 0 && len(due) >= limit) {
				return false
			}
			if stored, ok := st.reservations[entry.ReservationID]; ok {
				due = append(due, *copyReservation(stored))
			}
			return true
		})
		return nil
	})
	return due, err
}

func (r reservationRepo) CountDue(_ context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.view.run(func(st *state, _ *journal) error {
		st.due.Ascend(func(entry dueEntry) bool {
			if entry.ExpiresAt.After(now) {
				return false
			}
			count++
			return true
		})
		return nil
	})
	return count, err
}

func (r reservationRepo) FindByHolder(_ context.Context, holder string, limit int) ([]stock.Reservation, error) {
	var found []stock.Reservation
	err := r.view.run(func(st *state, _ *journal) error {
		found = make([]stock.Reservation, 0)
		for _, stored := range st.reservations {
			if stored.Holder == holder {
				found = append(found, *copyReservation(stored))
			}
		}
		sort.Slice(found, func(a, b int) bool {
			return found[a].CreatedAt.After(found[b].CreatedAt)
		})
		if limit > 0 && len(found) > limit {
			found = found[:limit]
		}
		return nil
	})
	return found, err
}

func (r reservationRepo) SumOpen(_ context.Context) (map[stock.SKU]int64, error) {
	totals := make(map[stock.SKU]int64)
	err := r.view.run(func(st *state, _ *journal) error {
		for _, stored := range st.reservations {
			if stored.IsOpen() {
				totals[stored.SKU] += stored.Quantity
			}
		}
		return nil
	})
	return totals, err
}

var _ stock.ReservationRepository = reservationRepo{}
