package inventory

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/stockflow-backend/pkg/enums"
)

// AvailabilityItem asks whether Quantity units are free. A nil WarehouseID
// aggregates every warehouse that carries the product.
type AvailabilityItem struct {
	ProductID   uuid.UUID  `json:"product_id" validate:"required"`
	WarehouseID *uuid.UUID `json:"warehouse_id,omitempty"`
	Quantity    int        `json:"quantity" validate:"required,gt=0"`
}

type AvailabilityResult struct {
	ProductID         uuid.UUID  `json:"product_id"`
	WarehouseID       *uuid.UUID `json:"warehouse_id,omitempty"`
	Requested         int        `json:"requested"`
	Available         bool       `json:"available"`
	AvailableQuantity int        `json:"available_quantity"`
	Shortfall         int        `json:"shortfall"`
}

// ReserveItem requests Quantity units at one warehouse. With AllowPartial the
// ledger grants whatever is free instead of skipping the item.
type ReserveItem struct {
	ProductID    uuid.UUID `json:"product_id" validate:"required"`
	WarehouseID  uuid.UUID `json:"warehouse_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,gt=0"`
	AllowPartial bool      `json:"allow_partial,omitempty"`
}

type ReservedItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Requested   int       `json:"requested"`
	Reserved    int       `json:"reserved"`
}

type Shortage struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Requested   int       `json:"requested"`
	Available   int       `json:"available"`
	Shortfall   int       `json:"shortfall"`
}

// ReserveResult lists grants and shortages. A partially granted item appears in both.
type ReserveResult struct {
	Reserved  []ReservedItem `json:"reserved"`
	Shortages []Shortage     `json:"shortages"`
}

// StockItem is the release/commit unit.
type StockItem struct {
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	WarehouseID uuid.UUID `json:"warehouse_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,gt=0"`
}

// CommitRef ties a commit to the business document that consumed the stock.
type CommitRef struct {
	ReferenceID uuid.UUID
	ActorID     uuid.UUID
}

type AdjustInput struct {
	ProductID   uuid.UUID          `json:"product_id" validate:"required"`
	WarehouseID uuid.UUID          `json:"warehouse_id" validate:"required"`
	Delta       int                `json:"delta" validate:"required,ne=0"`
	Reason      enums.MovementType `json:"reason" validate:"required"`
	Note        *string            `json:"note,omitempty"`
	ActorID     uuid.UUID          `json:"-"`
}

type RecordView struct {
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	OnHand      int       `json:"on_hand"`
	Reserved    int       `json:"reserved"`
	Available   int       `json:"available"`
}
