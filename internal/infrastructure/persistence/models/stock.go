package models

import (
	"time"

	"github.com/shopcore/stockhold/internal/domain/shared"
	"github.com/shopcore/stockhold/internal/domain/stock"
)

// StockRecordModel is the persistence model for the StockRecord aggregate root.
// A database CHECK keeps 0 <= reserved <= on_hand.
type StockRecordModel struct {
	AggregateModel
	ProductID         string `gorm:"type:varchar(64);not null;uniqueIndex:idx_stock_records_sku,priority:1"`
	VariantID         string `gorm:"type:varchar(64);not null;default:'';uniqueIndex:idx_stock_records_sku,priority:2"`
	OnHand            int64  `gorm:"not null;default:0"`
	Reserved          int64  `gorm:"not null;default:0;check:chk_stock_records_ledger,reserved >= 0 AND reserved <= on_hand"`
	ReorderThreshold  int64  `gorm:"not null;default:0"`
	LowStockThreshold int64  `gorm:"not null;default:0"`
	Status            string `gorm:"type:varchar(20);not null;default:'active';index"`
}

// TableName returns the table name for GORM
func (StockRecordModel) TableName() string {
	return "stock_records"
}

// ToDomain converts the persistence model to a domain StockRecord
func (m *StockRecordModel) ToDomain() *stock.StockRecord {
	return &stock.StockRecord{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		SKU:               stock.SKU{ProductID: m.ProductID, VariantID: m.VariantID},
		OnHand:            m.OnHand,
		Reserved:          m.Reserved,
		ReorderThreshold:  m.ReorderThreshold,
		LowStockThreshold: m.LowStockThreshold,
		Status:            stock.StockStatus(m.Status),
	}
}

// FromDomain populates the persistence model from a domain StockRecord
func (m *StockRecordModel) FromDomain(r *stock.StockRecord) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.ProductID = r.SKU.ProductID
	m.VariantID = r.SKU.VariantID
	m.OnHand = r.OnHand
	m.Reserved = r.Reserved
	m.ReorderThreshold = r.ReorderThreshold
	m.LowStockThreshold = r.LowStockThreshold
	m.Status = string(r.Status)
}

// StockRecordModelFromDomain creates a new persistence model from a domain StockRecord
func StockRecordModelFromDomain(r *stock.StockRecord) *StockRecordModel {
	m := &StockRecordModel{}
	m.FromDomain(r)
	return m
}

// ReservationModel is the persistence model for the Reservation entity.
type ReservationModel struct {
	BaseModel
	ProductID      string     `gorm:"type:varchar(64);not null;index:idx_reservations_sku,priority:1"`
	VariantID      string     `gorm:"type:varchar(64);not null;default:'';index:idx_reservations_sku,priority:2"`
	Quantity       int64      `gorm:"not null"`
	Holder         string     `gorm:"type:varchar(128);not null;index"`
	Status         string     `gorm:"type:varchar(20);not null;default:'open';index:idx_reservations_due,priority:1"`
	ExpiresAt      time.Time  `gorm:"not null;index:idx_reservations_due,priority:2"`
	OrderReference string     `gorm:"type:varchar(128);not null;default:''"`
	ResolvedAt     *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "reservations"
}

// ToDomain converts the persistence model to a domain Reservation
func (m *ReservationModel) ToDomain() *stock.Reservation {
	return &stock.Reservation{
		BaseEntity:     shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		SKU:            stock.SKU{ProductID: m.ProductID, VariantID: m.VariantID},
		Quantity:       m.Quantity,
		Holder:         m.Holder,
		Status:         stock.ReservationStatus(m.Status),
		ExpiresAt:      m.ExpiresAt,
		OrderReference: m.OrderReference,
		ResolvedAt:     m.ResolvedAt,
	}
}

// FromDomain populates the persistence model from a domain Reservation
func (m *ReservationModel) FromDomain(r *stock.Reservation) {
	m.FromDomainBaseEntity(r.BaseEntity)
	m.ProductID = r.SKU.ProductID
	m.VariantID = r.SKU.VariantID
	m.Quantity = r.Quantity
	m.Holder = r.Holder
	m.Status = string(r.Status)
	m.ExpiresAt = r.ExpiresAt.UTC()
	m.OrderReference = r.OrderReference
	m.ResolvedAt = nil
	if r.ResolvedAt != nil {
		resolved := r.ResolvedAt.UTC()
		m.ResolvedAt = &resolved
	}
}

// ReservationModelFromDomain creates a new persistence model from a domain Reservation
func ReservationModelFromDomain(r *stock.Reservation) *ReservationModel {
	m := &ReservationModel{}
	m.FromDomain(r)
	return m
}
