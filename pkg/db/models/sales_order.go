package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/enums"
)

// SalesOrder is the header of the sales order aggregate.
type SalesOrder struct {
	ID                uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string                 `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID        uuid.UUID              `gorm:"column:customer_id;type:uuid;not null;index"`
	Status            enums.SalesOrderStatus `gorm:"column:status;type:sales_order_status;not null;index"`
	TotalAmount       decimal.Decimal        `gorm:"column:total_amount;type:numeric(14,2);not null;default:0"`
	PaidAmount        decimal.Decimal        `gorm:"column:paid_amount;type:numeric(14,2);not null;default:0"`
	OutstandingAmount decimal.Decimal        `gorm:"column:outstanding_amount;type:numeric(14,2);not null;default:0"`
	Notes             *string                `gorm:"column:notes"`
	CreatedBy         uuid.UUID              `gorm:"column:created_by;type:uuid;not null"`
	ApprovedBy        *uuid.UUID             `gorm:"column:approved_by;type:uuid"`
	CompletedBy       *uuid.UUID             `gorm:"column:completed_by;type:uuid"`
	CancelledBy       *uuid.UUID             `gorm:"column:cancelled_by;type:uuid"`
	CancelReason      *string                `gorm:"column:cancel_reason"`
	SubmittedAt       *time.Time             `gorm:"column:submitted_at"`
	ApprovedAt        *time.Time             `gorm:"column:approved_at"`
	CompletedAt       *time.Time             `gorm:"column:completed_at"`
	CancelledAt       *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt         time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`

	Lines []SalesOrderLine `gorm:"foreignKey:OrderID;references:ID"`
}

func (o *SalesOrder) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// SalesOrderLine is one product/warehouse/quantity row of an order. ReservedQty is the
// portion of Quantity currently held in inventory_records.reserved_qty for this line.
type SalesOrderLine struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	LineNumber  int             `gorm:"column:line_number;not null"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	WarehouseID uuid.UUID       `gorm:"column:warehouse_id;type:uuid;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	ReservedQty int             `gorm:"column:reserved_qty;not null;default:0"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(14,2);not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(14,2);not null"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *SalesOrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Shortfall is the unreserved remainder of the line.
func (l SalesOrderLine) Shortfall() int {
	if l.ReservedQty >= l.Quantity {
		return 0
	}
	return l.Quantity - l.ReservedQty
}
