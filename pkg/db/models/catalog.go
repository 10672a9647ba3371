package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/enums"
)

// Product is owned by the catalog; the fulfillment engine only reads it.
type Product struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SKU       string             `gorm:"column:sku;not null;uniqueIndex"`
	Name      string             `gorm:"column:name;not null"`
	Type      enums.ProductType  `gorm:"column:type;type:product_type;not null"`
	Status    enums.RecordStatus `gorm:"column:status;type:record_status;not null;default:active"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Warehouse is a stock location referenced by inventory records and order lines.
type Warehouse struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Code      string              `gorm:"column:code;not null;uniqueIndex"`
	Name      string              `gorm:"column:name;not null"`
	Type      enums.WarehouseType `gorm:"column:type;type:warehouse_type;not null"`
	Status    enums.RecordStatus  `gorm:"column:status;type:record_status;not null;default:active"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Warehouse) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// Customer is the buyer a sales order and its debt entries belong to.
type Customer struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name      string             `gorm:"column:name;not null"`
	Status    enums.RecordStatus `gorm:"column:status;type:record_status;not null;default:active"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
