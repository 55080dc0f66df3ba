package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

type stockRepo struct {
	view *view
}

func (r stockRepo) GetAvailable(ctx context.Context, sku stock.SKU) (int64, error) {
	levels, err := r.GetLevels(ctx, sku)
	if err != nil {
		return 0, err
	}
	return levels.Available(), nil
}

func (r stockRepo) GetLevels(_ context.Context, sku stock.SKU) (stock.Levels, error) {
	var levels stock.Levels
	err := r.view.run(func(st *state, _ *journal) error {
		record, ok := st.stock[sku]
		if !ok {
			return stock.ErrStockNotFound
		}
		levels = record.Levels()
		return nil
	})
	return levels, err
}

func (r stockRepo) AdjustReserved(_ context.Context, sku stock.SKU, delta int64) (stock.Levels, error) {
	var levels stock.Levels
	err := r.view.run(func(st *state, j *journal) error {
		record, ok := st.stock[sku]
		if !ok {
			return stock.ErrStockNotFound
		}
		next := record.Reserved + delta
		if next < 0 {
			return stock.ErrLedgerInvariant
		}
		if next > record.OnHand {
			return &stock.InsufficientStockError{SKU: sku, Requested: delta, Available: record.Available()}
		}
		prev := record.Reserved
		record.Reserved = next
		j.record(func() { record.Reserved = prev })
		levels = record.Levels()
		return nil
	})
	return levels, err
}

func (r stockRepo) AdjustOnHand(_ context.Context, sku stock.SKU, delta int64, alsoReduceReserved bool) (stock.Levels, error) {
	var levels stock.Levels
	err := r.view.run(func(st *state, j *journal) error {
		record, ok := st.stock[sku]
		if !ok {
			return stock.ErrStockNotFound
		}
		nextOnHand := record.OnHand + delta
		nextReserved := record.Reserved
		if alsoReduceReserved {
			if delta >= 0 {
				return stock.ErrInvalidQuantity
			}
			nextReserved = record.Reserved + delta
			if nextReserved < 0 || nextOnHand < 0 {
				return stock.ErrLedgerInvariant
			}
		} else if nextOnHand < record.Reserved {
			return &stock.InsufficientStockError{SKU: sku, Requested: -delta, Available: record.Available()}
		}

		prevOnHand, prevReserved := record.OnHand, record.Reserved
		record.OnHand, record.Reserved = nextOnHand, nextReserved
		j.record(func() { record.OnHand, record.Reserved = prevOnHand, prevReserved })
		levels = record.Levels()
		return nil
	})
	return levels, err
}

func (r stockRepo) FindBySKU(_ context.Context, sku stock.SKU) (*stock.StockRecord, error) {
	var found *stock.StockRecord
	err := r.view.run(func(st *state, _ *journal) error {
		record, ok := st.stock[sku]
		if !ok {
			return stock.ErrStockNotFound
		}
		found = copyRecord(record)
		return nil
	})
	return found, err
}

func (r stockRepo) FindAll(_ context.Context, filter stock.StockFilter) ([]stock.StockRecord, int64, error) {
	var (
		page  []stock.StockRecord
		total int64
	)
	err := r.view.run(func(st *state, _ *journal) error {
		matched := make([]*stock.StockRecord, 0, len(st.skus))
		for _, sku := range st.skus {
			record := st.stock[sku]
			if filter.ProductID != "" && record.SKU.ProductID != filter.ProductID {
				continue
			}
			if filter.Status != "" && record.Status != filter.Status {
				continue
			}
			if filter.LowStockOnly && (record.Status == stock.StockStatusDiscontinued || !record.IsLowStock()) {
				continue
			}
			matched = append(matched, record)
		}
		sort.SliceStable(matched, func(a, b int) bool {
			return strings.Compare(matched[a].SKU.String(), matched[b].SKU.String()) < 0
		})

		total = int64(len(matched))
		offset, limit := pageBounds(filter.Page, filter.PageSize)
		if offset >= len(matched) {
			page = []stock.StockRecord{}
			return nil
		}
		end := offset + limit
		if end > len(matched) {
			end = len(matched)
		}
		page = make([]stock.StockRecord, 0, end-offset)
		for _, record := range matched[offset:end] {
			page = append(page, *copyRecord(record))
		}
		return nil
	})
	return page, total, err
}

func (r stockRepo) Create(_ context.Context, record *stock.StockRecord) error {
	return r.view.run(func(st *state, j *journal) error {
		if _, exists := st.stock[record.SKU]; exists {
			return stock.ErrStockAlreadyExists
		}
		st.stock[record.SKU] = copyRecord(record)
		st.skus = append(st.skus, record.SKU)
		j.record(func() {
			delete(st.stock, record.SKU)
			st.skus = st.skus[:len(st.skus)-1]
		})
		return nil
	})
}

func (r stockRepo) SaveSettings(_ context.Context, record *stock.StockRecord) error {
	return r.view.run(func(st *state, j *journal) error {
		stored, ok := st.stock[record.SKU]
		if !ok {
			return stock.ErrStockNotFound
		}
		if stored.Version != record.Version-1 {
			return shared.ErrConcurrencyConflict
		}
		prev := *stored
		stored.ReorderThreshold = record.ReorderThreshold
		stored.LowStockThreshold = record.LowStockThreshold
		if record.Status == stock.StockStatusDiscontinued {
			stored.Status = record.Status
		}
		stored.Version = record.Version
		stored.UpdatedAt = record.UpdatedAt
		j.record(func() { *stored = prev })
		return nil
	})
}

func (r stockRepo) SyncStatus(_ context.Context, sku stock.SKU) (stock.StockStatus, error) {
	var status stock.StockStatus
	err := r.view.run(func(st *state, j *journal) error {
		record, ok := st.stock[sku]
		if !ok {
			return stock.ErrStockNotFound
		}
		prev, prevUpdated := record.Status, record.UpdatedAt
		record.Status = stock.StatusFor(record.Status, record.Levels())
		if record.Status != prev {
			record.UpdatedAt = time.Now()
		}
		j.record(func() { record.Status, record.UpdatedAt = prev, prevUpdated })
		status = record.Status
		return nil
	})
	return status, err
}

func pageBounds(page, pageSize int) (offset, limit int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return (page - 1) * pageSize, pageSize
}

var _ stock.StockRepository = stockRepo{}
