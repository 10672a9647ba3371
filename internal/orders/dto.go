package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockflow-backend/pkg/pagination"
)

// LineInput is one requested order line.
type LineInput struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    int
	UnitPrice   decimal.Decimal
}

type CreateOrderInput struct {
	CustomerID  uuid.UUID
	Lines       []LineInput
	Notes       *string
	SaveAsDraft bool
	ActorID     uuid.UUID
}

// UpdateOrderInput replaces whichever parts are set. Nil Lines keeps the current lines.
type UpdateOrderInput struct {
	OrderID    uuid.UUID
	CustomerID *uuid.UUID
	Lines      []LineInput
	Notes      *string
	ClearNotes bool
	ActorID    uuid.UUID
}

type CancelOrderInput struct {
	OrderID uuid.UUID
	Reason  string
	ActorID uuid.UUID
}

type RecordPaymentInput struct {
	OrderID   uuid.UUID
	Amount    decimal.Decimal
	Method    enums.PaymentMethod
	Reference *string
	ActorID   uuid.UUID
}

type ListOrdersParams struct {
	pagination.Params
	Status     *enums.SalesOrderStatus
	CustomerID *uuid.UUID
}

// MutationResult is returned by create and update. Shortages are warnings, not failures.
type MutationResult struct {
	Order              *OrderView              `json:"order"`
	InventoryShortages []payloads.LineShortage `json:"inventory_shortages"`
}

type PaymentResult struct {
	Order   *OrderView   `json:"order"`
	Payment *PaymentView `json:"payment"`
}

type OrderView struct {
	ID                uuid.UUID              `json:"id"`
	OrderNumber       string                 `json:"order_number"`
	CustomerID        uuid.UUID              `json:"customer_id"`
	Status            enums.SalesOrderStatus `json:"status"`
	TotalAmount       decimal.Decimal        `json:"total_amount"`
	PaidAmount        decimal.Decimal        `json:"paid_amount"`
	OutstandingAmount decimal.Decimal        `json:"outstanding_amount"`
	Notes             *string                `json:"notes,omitempty"`
	CreatedBy         uuid.UUID              `json:"created_by"`
	ApprovedBy        *uuid.UUID             `json:"approved_by,omitempty"`
	CompletedBy       *uuid.UUID             `json:"completed_by,omitempty"`
	CancelledBy       *uuid.UUID             `json:"cancelled_by,omitempty"`
	CancelReason      *string                `json:"cancel_reason,omitempty"`
	SubmittedAt       *time.Time             `json:"submitted_at,omitempty"`
	ApprovedAt        *time.Time             `json:"approved_at,omitempty"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
	CancelledAt       *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	Lines             []LineView             `json:"lines,omitempty"`
}

type LineView struct {
	ID          uuid.UUID       `json:"id"`
	LineNumber  int             `json:"line_number"`
	ProductID   uuid.UUID       `json:"product_id"`
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	Quantity    int             `json:"quantity"`
	ReservedQty int             `json:"reserved_qty"`
	Shortfall   int             `json:"shortfall"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type PaymentView struct {
	ID        uuid.UUID           `json:"id"`
	OrderID   uuid.UUID           `json:"order_id"`
	Amount    decimal.Decimal     `json:"amount"`
	Method    enums.PaymentMethod `json:"method"`
	Reference *string             `json:"reference,omitempty"`
	CreatedBy uuid.UUID           `json:"created_by"`
	CreatedAt time.Time           `json:"created_at"`
}

func toOrderView(order *models.SalesOrder, lines []*models.SalesOrderLine) *OrderView {
	view := &OrderView{
		ID:                order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerID:        order.CustomerID,
		Status:            order.Status,
		TotalAmount:       order.TotalAmount,
		PaidAmount:        order.PaidAmount,
		OutstandingAmount: order.OutstandingAmount,
		Notes:             order.Notes,
		CreatedBy:         order.CreatedBy,
		ApprovedBy:        order.ApprovedBy,
		CompletedBy:       order.CompletedBy,
		CancelledBy:       order.CancelledBy,
		CancelReason:      order.CancelReason,
		SubmittedAt:       order.SubmittedAt,
		ApprovedAt:        order.ApprovedAt,
		CompletedAt:       order.CompletedAt,
		CancelledAt:       order.CancelledAt,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
	if lines == nil && len(order.Lines) > 0 {
		for i := range order.Lines {
			lines = append(lines, &order.Lines[i])
		}
	}
	for _, line := range lines {
		view.Lines = append(view.Lines, LineView{
			ID:          line.ID,
			LineNumber:  line.LineNumber,
			ProductID:   line.ProductID,
			WarehouseID: line.WarehouseID,
			Quantity:    line.Quantity,
			ReservedQty: line.ReservedQty,
			Shortfall:   line.Shortfall(),
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.LineTotal,
		})
	}
	return view
}

func toPaymentView(p *models.SalesOrderPayment) *PaymentView {
	return &PaymentView{
		ID:        p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Method:    p.Method,
		Reference: p.Reference,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt,
	}
}
