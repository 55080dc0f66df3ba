package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
	"github.com/shopcore/stockhold/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReservationRepository implements stock.ReservationRepository using GORM
type GormReservationRepository struct {
	db *gorm.DB
}

// NewGormReservationRepository creates a new GormReservationRepository
func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

// FindByID finds a reservation by its ID
func (r *GormReservationRepository) FindByID(ctx context.Context, id uuid.UUID) (*stock.Reservation, error) {
	var model models.ReservationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, stock.ErrReservationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new reservation
func (r *GormReservationRepository) Create(ctx context.Context, res *stock.Reservation) error {
	model := models.ReservationModelFromDomain(res)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Transition is a compare-and-set on status: the row is only written while
// its stored status still equals from.
func (r *GormReservationRepository) Transition(ctx context.Context, res *stock.Reservation, from stock.ReservationStatus) error {
	model := models.ReservationModelFromDomain(res)
	result := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("id = ? AND status = ?", res.ID, string(from)).
		Updates(map[string]interface{}{
			"status":          model.Status,
			"order_reference": model.OrderReference,
			"resolved_at":     model.ResolvedAt,
			"updated_at":      model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, res.ID); err != nil {
			return err
		}
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindDue returns open reservations whose expiry has passed, oldest first
func (r *GormReservationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]stock.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(stock.ReservationStatusOpen), now.UTC()).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.ReservationModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toReservations(rows), nil
}

// CountDue counts open reservations whose expiry has passed
func (r *GormReservationRepository) CountDue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Where("status = ? AND expires_at <= ?", string(stock.ReservationStatusOpen), now.UTC()).
		Count(&count).Error
	return count, err
}

// FindByHolder returns a holder's reservations, newest first
func (r *GormReservationRepository) FindByHolder(ctx context.Context, holder string, limit int) ([]stock.Reservation, error) {
	query := r.db.WithContext(ctx).
		Where("holder = ?", holder).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.ReservationModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toReservations(rows), nil
}

// SumOpen totals open reservation quantity per SKU
func (r *GormReservationRepository) SumOpen(ctx context.Context) (map[stock.SKU]int64, error) {
	var rows []struct {
		ProductID string
		VariantID string
		Total     int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ReservationModel{}).
		Select("product_id, variant_id, SUM(quantity) AS total").
		Where("status = ?", string(stock.ReservationStatusOpen)).
		Group("product_id, variant_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make(map[stock.SKU]int64, len(rows))
	for _, row := range rows {
		totals[stock.SKU{ProductID: row.ProductID, VariantID: row.VariantID}] = row.Total
	}
	return totals, nil
}

func toReservations(rows []models.ReservationModel) []stock.Reservation {
	out := make([]stock.Reservation, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// Ensure GormReservationRepository implements stock.ReservationRepository
var _ stock.ReservationRepository = (*GormReservationRepository)(nil)
