package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/enums"
)

// InventoryRecord tracks on-hand and reserved counts per (product, warehouse).
// Available stock is always OnHandQty - ReservedQty and is never stored.
type InventoryRecord struct {
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	WarehouseID uuid.UUID `gorm:"column:warehouse_id;type:uuid;primaryKey"`
	OnHandQty   int       `gorm:"column:on_hand_qty;not null;default:0"`
	ReservedQty int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// AvailableQty returns the unreserved on-hand quantity.
func (r InventoryRecord) AvailableQty() int {
	available := r.OnHandQty - r.ReservedQty
	if available < 0 {
		return 0
	}
	return available
}

// InventoryMovement is the append-only audit trail of on-hand changes.
type InventoryMovement struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index:idx_inventory_movements_key"`
	WarehouseID   uuid.UUID          `gorm:"column:warehouse_id;type:uuid;not null;index:idx_inventory_movements_key"`
	MovementType  enums.MovementType `gorm:"column:movement_type;type:movement_type;not null"`
	QuantityDelta int                `gorm:"column:quantity_delta;not null"`
	ReferenceID   *uuid.UUID         `gorm:"column:reference_id;type:uuid"`
	Note          *string            `gorm:"column:note"`
	CreatedBy     *uuid.UUID         `gorm:"column:created_by;type:uuid"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (m *InventoryMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
