package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormStockRepository implements stock.StockRepository using GORM.
// Counter changes are single conditional UPDATEs, so the database itself
// refuses any change that would break 0 <= reserved <= on_hand.
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// GetAvailable returns on_hand - reserved for a SKU
func (r *GormStockRepository) GetAvailable(ctx context.Context, sku stock.SKU) (int64, error) {
	levels, err := r.GetLevels(ctx, sku)
	if err != nil {
		return 0, err
	}
	return levels.Available(), nil
}

// GetLevels returns the current counters for a SKU
func (r *GormStockRepository) GetLevels(ctx context.Context, sku stock.SKU) (stock.Levels, error) {
	var levels struct {
		OnHand   int64
		Reserved int64
	}
	result := r.db.WithContext(ctx).
		Model(&models.StockRecordModel{}).
		Select("on_hand, reserved").
		Where("product_id = ? AND variant_id = ?", sku.ProductID, sku.VariantID).
		Limit(1).
		Scan(&levels)
	if result.Error != nil {
		return stock.Levels{}, result.Error
	}
	if result.RowsAffected == 0 {
		return stock.Levels{}, stock.ErrStockNotFound
	}
	return stock.Levels{OnHand: levels.OnHand, Reserved: levels.Reserved}, nil
}

// AdjustReserved moves reserved by delta when the result stays within [0, on_hand]
func (r *GormStockRepository) AdjustReserved(ctx context.Context, sku stock.SKU, delta int64) (stock.Levels, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockRecordModel{}).
		Where("product_id = ? AND variant_id = ? AND reserved + ? >= 0 AND reserved + ? <= on_hand",
			sku.ProductID, sku.VariantID, delta, delta).
		Updates(map[string]interface{}{
			"reserved":   gorm.Expr("reserved + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return stock.Levels{}, result.Error
	}

	levels, err := r.GetLevels(ctx, sku)
	if err != nil {
		return stock.Levels{}, err
	}
	if result.RowsAffected == 0 {
		if levels.Reserved+delta < 0 {
			return stock.Levels{}, stock.ErrLedgerInvariant
		}
		return stock.Levels{}, &stock.InsufficientStockError{SKU: sku, Requested: delta, Available: levels.Available()}
	}
	return levels, nil
}

// AdjustOnHand moves on_hand by delta. With alsoReduceReserved, reserved moves
// by the same negative delta, which is how a commit consumes its hold.
func (r *GormStockRepository) AdjustOnHand(ctx context.Context, sku stock.SKU, delta int64, alsoReduceReserved bool) (stock.Levels, error) {
	query := r.db.WithContext(ctx).
		Model(&models.StockRecordModel{}).
		Where("product_id = ? AND variant_id = ?", sku.ProductID, sku.VariantID)
	updates := map[string]interface{}{
		"on_hand":    gorm.Expr("on_hand + ?", delta),
		"updated_at": time.Now().UTC(),
	}
	if alsoReduceReserved {
		if delta >= 0 {
			return stock.Levels{}, stock.ErrInvalidQuantity
		}
		query = query.Where("on_hand + ? >= 0 AND reserved + ? >= 0", delta, delta)
		updates["reserved"] = gorm.Expr("reserved + ?", delta)
	} else {
		query = query.Where("on_hand + ? >= reserved", delta)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return stock.Levels{}, result.Error
	}

	levels, err := r.GetLevels(ctx, sku)
	if err != nil {
		return stock.Levels{}, err
	}
	if result.RowsAffected == 0 {
		if alsoReduceReserved {
			return stock.Levels{}, stock.ErrLedgerInvariant
		}
		return stock.Levels{}, &stock.InsufficientStockError{SKU: sku, Requested: -delta, Available: levels.Available()}
	}
	return levels, nil
}

// FindBySKU finds a stock record by SKU
func (r *GormStockRepository) FindBySKU(ctx context.Context, sku stock.SKU) (*stock.StockRecord, error) {
	var model models.StockRecordModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", sku.ProductID, sku.VariantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stock.ErrStockNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns a page of stock records ordered by SKU, plus the total match count
func (r *GormStockRepository) FindAll(ctx context.Context, filter stock.StockFilter) ([]stock.StockRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.StockRecordModel{})
	if filter.ProductID != "" {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.LowStockOnly {
		query = query.Where("status <> ? AND low_stock_threshold > 0 AND on_hand - reserved <= low_stock_threshold",
			string(stock.StockStatusDiscontinued))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	var rows []models.StockRecordModel
	if err := query.
		Order("product_id ASC, variant_id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	records := make([]stock.StockRecord, len(rows))
	for i := range rows {
		records[i] = *rows[i].ToDomain()
	}
	return records, total, nil
}

// Create inserts a new stock record
func (r *GormStockRepository) Create(ctx context.Context, record *stock.StockRecord) error {
	model := models.StockRecordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return stock.ErrStockAlreadyExists
		}
		return err
	}
	return nil
}

// SaveSettings writes thresholds with optimistic locking (checks version).
// Counters are never written here; they only change through the Ledger methods.
// Status is written only to discontinue; active/out_of_stock belong to SyncStatus.
func (r *GormStockRepository) SaveSettings(ctx context.Context, record *stock.StockRecord) error {
	updates := map[string]interface{}{
		"reorder_threshold":   record.ReorderThreshold,
		"low_stock_threshold": record.LowStockThreshold,
		"version":             record.Version,
		"updated_at":          record.UpdatedAt,
	}
	if record.Status == stock.StockStatusDiscontinued {
		updates["status"] = string(record.Status)
	}
	result := r.db.WithContext(ctx).
		Model(&models.StockRecordModel{}).
		Where("product_id = ? AND variant_id = ? AND version = ?",
			record.SKU.ProductID, record.SKU.VariantID, record.Version-1).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindBySKU(ctx, record.SKU); err != nil {
			return err
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// SyncStatus re-derives active/out_of_stock from the stored counters
func (r *GormStockRepository) SyncStatus(ctx context.Context, sku stock.SKU) (stock.StockStatus, error) {
	record, err := r.FindBySKU(ctx, sku)
	if err != nil {
		return "", err
	}
	status := stock.StatusFor(record.Status, record.Levels())
	if status == record.Status {
		return status, nil
	}

	if err := r.db.WithContext(ctx).
		Model(&models.StockRecordModel{}).
		Where("product_id = ? AND variant_id = ? AND status = ?", sku.ProductID, sku.VariantID, string(record.Status)).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return "", err
	}
	return status, nil
}

// Ensure GormStockRepository implements stock.StockRepository
var _ stock.StockRepository = (*GormStockRepository)(nil)
