package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockflow-backend/pkg/enums"
)

// LineShortage is a line that could not be fully reserved.
type LineShortage struct {
	LineNumber  int       `json:"line_number"`
	ProductID   uuid.UUID `json:"product_id"`
	WarehouseID uuid.UUID `json:"warehouse_id"`
	Requested   int       `json:"requested"`
	Reserved    int       `json:"reserved"`
	Shortfall   int       `json:"shortfall"`
}

// SalesOrderEvent covers create, update, submit and approve.
type SalesOrderEvent struct {
	OrderID        uuid.UUID              `json:"order_id"`
	OrderNumber    string                 `json:"order_number"`
	CustomerID     uuid.UUID              `json:"customer_id"`
	Status         enums.SalesOrderStatus `json:"status"`
	PreviousStatus enums.SalesOrderStatus `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal        `json:"total_amount"`
	Shortages      []LineShortage         `json:"shortages,omitempty"`
}

// SalesOrderCompletedEvent is emitted once stock is committed and debt posted.
type SalesOrderCompletedEvent struct {
	OrderID      uuid.UUID       `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	CustomerID   uuid.UUID       `json:"customer_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	DebtAmount   decimal.Decimal `json:"debt_amount"`
	CommittedQty int             `json:"committed_qty"`
}

// SalesOrderCancelledEvent is emitted after reservations are released.
type SalesOrderCancelledEvent struct {
	OrderID        uuid.UUID              `json:"order_id"`
	OrderNumber    string                 `json:"order_number"`
	PreviousStatus enums.SalesOrderStatus `json:"previous_status"`
	ReleasedQty    int                    `json:"released_qty"`
	Reason         string                 `json:"reason,omitempty"`
}

// PaymentRecordedEvent reports a payment and the resulting balances.
type PaymentRecordedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	PaymentID         uuid.UUID           `json:"payment_id"`
	Amount            decimal.Decimal     `json:"amount"`
	Method            enums.PaymentMethod `json:"method"`
	PaidAmount        decimal.Decimal     `json:"paid_amount"`
	OutstandingAmount decimal.Decimal     `json:"outstanding_amount"`
}
