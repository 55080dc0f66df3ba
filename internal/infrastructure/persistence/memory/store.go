// Package memory keeps stock records and reservations in process memory.
// It backs the "memory" database driver for single-node demos and fast tests;
// it is not durable.
package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/application/reservation"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

// dueEntry orders open reservations by expiry, then id.
type dueEntry struct {
	ExpiresAt     time.Time
	ReservationID uuid.UUID
}

func dueLess(a, b dueEntry) bool {
	if !a.ExpiresAt.Equal(b.ExpiresAt) {
		return a.ExpiresAt.Before(b.ExpiresAt)
	}
	return bytes.Compare(a.ReservationID[:], b.ReservationID[:]) < 0
}

type state struct {
	stock        map[stock.SKU]*stock.StockRecord
	skus         []stock.SKU // insertion order for listings
	reservations map[uuid.UUID]*stock.Reservation
	due          *btree.BTreeG[dueEntry]
}

// Store is an in-memory implementation of both repositories and the
// transaction scope. One mutex guards all data; Execute holds it for the
// whole unit of work and undoes every change if the work fails, so units of
// work on different SKUs run one after another. It backs tests and the
// memory driver, which production configs refuse.
type Store struct {
	mu sync.Mutex
	st *state
}

// NewStore creates an empty Store
func NewStore() *Store {
	const degree = 32
	return &Store{
		st: &state{
			stock:        make(map[stock.SKU]*stock.StockRecord),
			reservations: make(map[uuid.UUID]*stock.Reservation),
			due:          btree.NewG[dueEntry](degree, dueLess),
		},
	}
}

// Execute runs fn with exclusive access to the store. If fn fails, all of
// its changes are rolled back.
func (s *Store) Execute(ctx context.Context, fn func(repos reservation.TransactionalRepositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := &view{store: s, journal: &journal{}}
	if err := fn(v); err != nil {
		v.journal.rollback()
		return err
	}
	return nil
}

// StockRepo returns a stock repository where every call is its own unit of work
func (s *Store) StockRepo() stock.StockRepository {
	return stockRepo{view: &view{store: s}}
}

// ReservationRepo returns a reservation repository where every call is its own unit of work
func (s *Store) ReservationRepo() stock.ReservationRepository {
	return reservationRepo{view: &view{store: s}}
}

// journal records undo steps for the running unit of work
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// view is the store as seen by one caller. Inside Execute the store mutex is
// already held and changes are journaled; outside it each call locks itself.
type view struct {
	store   *Store
	journal *journal
}

func (v *view) StockRepo() stock.StockRepository {
	return stockRepo{view: v}
}

func (v *view) ReservationRepo() stock.ReservationRepository {
	return reservationRepo{view: v}
}

// run executes fn against the data with the right locking and journaling
func (v *view) run(fn func(st *state, j *journal) error) error {
	if v.journal != nil {
		return fn(v.store.st, v.journal)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	j := &journal{}
	if err := fn(v.store.st, j); err != nil {
		j.rollback()
		return err
	}
	return nil
}

func copyRecord(r *stock.StockRecord) *stock.StockRecord {
	cp := *r
	cp.ClearDomainEvents()
	return &cp
}

func copyReservation(r *stock.Reservation) *stock.Reservation {
	cp := *r
	if r.ResolvedAt != nil {
		resolved := *r.ResolvedAt
		cp.ResolvedAt = &resolved
	}
	return &cp
}

var (
	_ reservation.TransactionScope          = (*Store)(nil)
	_ reservation.TransactionalRepositories = (*Store)(nil)
	_ reservation.TransactionalRepositories = (*view)(nil)
)
