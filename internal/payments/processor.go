package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/internal/debts"
	"github.com/angelmondragon/stockflow-backend/pkg/db"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
)

type RecordPaymentInput struct {
	Amount    decimal.Decimal
	Method    enums.PaymentMethod
	Reference *string
	ActorID   uuid.UUID
}

type creditPoster interface {
	PostPaymentCredit(ctx context.Context, tx *gorm.DB, input debts.PostDebtInput) (*models.CustomerDebtEntry, error)
}

// Processor applies payments to an order the caller has already locked.
// Status gating belongs to the order state machine.
type Processor struct {
	repo  Repository
	debts creditPoster
}

func NewProcessor(repo Repository, debts creditPoster) (*Processor, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if debts == nil {
		return nil, fmt.Errorf("debt poster required")
	}
	return &Processor{repo: repo, debts: debts}, nil
}

// RecordPayment inserts the payment and moves paid/outstanding on order in place.
func (p *Processor) RecordPayment(ctx context.Context, tx *gorm.DB, order *models.SalesOrder, input RecordPaymentInput) (*models.SalesOrderPayment, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be greater than zero")
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", input.Method))
	}
	newPaid := order.PaidAmount.Add(amount)
	if newPaid.GreaterThan(order.TotalAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment exceeds outstanding amount").WithDetails(map[string]any{
			"amount":      amount.StringFixed(2),
			"outstanding": order.OutstandingAmount.StringFixed(2),
		})
	}

	var reference *string
	if input.Reference != nil {
		if trimmed := strings.TrimSpace(*input.Reference); trimmed != "" {
			reference = &trimmed
		}
	}

	repo := p.repo.WithTx(tx)
	payment := &models.SalesOrderPayment{
		OrderID:   order.ID,
		Amount:    amount,
		Method:    input.Method,
		Reference: reference,
		CreatedBy: input.ActorID,
	}
	if err := repo.Insert(ctx, payment); err != nil {
		return nil, db.WrapPersistence(err, "insert payment")
	}

	order.PaidAmount = newPaid
	order.OutstandingAmount = order.TotalAmount.Sub(newPaid)
	rows, err := repo.UpdateOrderBalances(ctx, order)
	if err != nil {
		return nil, db.WrapPersistence(err, "update order balances")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "order changed while recording payment")
	}

	// Completed orders already carry their debt entry; the credit keeps the ledger in step.
	if order.Status == enums.SalesOrderStatusCompleted {
		if _, err := p.debts.PostPaymentCredit(ctx, tx, debts.PostDebtInput{
			CustomerID: order.CustomerID,
			OrderID:    order.ID,
			Amount:     amount,
			ActorID:    input.ActorID,
		}); err != nil {
			return nil, err
		}
	}
	return payment, nil
}

func (p *Processor) ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.SalesOrderPayment, error) {
	rows, err := p.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, db.WrapPersistence(err, "list payments")
	}
	return rows, nil
}
