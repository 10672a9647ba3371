package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/enums"
)

// CustomerDebtEntry is an immutable row in the customer debt ledger.
type CustomerDebtEntry struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	OrderID    uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index;uniqueIndex:ux_customer_debt_entries_order_debt,where:entry_type = 'order_debt'"`
	EntryType  enums.DebtEntryType `gorm:"column:entry_type;type:debt_entry_type;not null"`
	Amount     decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	CreatedBy  uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (e *CustomerDebtEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// SalesOrderPayment records money received against an order.
type SalesOrderPayment struct {
	ID        uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Amount    decimal.Decimal     `gorm:"column:amount;type:numeric(14,2);not null"`
	Method    enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Reference *string             `gorm:"column:reference"`
	CreatedBy uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (p *SalesOrderPayment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
