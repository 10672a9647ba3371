package debts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/db"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
)

const debtUniqueIndex = "ux_customer_debt_entries_order_debt"

// Service appends to the customer debt ledger. It does not deduplicate; the
// order state machine only calls PostDebt on the approved -> completed edge.
type Service interface {
	PostDebt(ctx context.Context, tx *gorm.DB, input PostDebtInput) (*models.CustomerDebtEntry, error)
	PostPaymentCredit(ctx context.Context, tx *gorm.DB, input PostDebtInput) (*models.CustomerDebtEntry, error)
	CustomerBalance(ctx context.Context, customerID uuid.UUID) (*Balance, error)
	ListEntries(ctx context.Context, customerID uuid.UUID) ([]models.CustomerDebtEntry, error)
}

type PostDebtInput struct {
	CustomerID uuid.UUID
	OrderID    uuid.UUID
	Amount     decimal.Decimal
	ActorID    uuid.UUID
}

type Balance struct {
	CustomerID uuid.UUID       `json:"customer_id"`
	Balance    decimal.Decimal `json:"balance"`
	EntryCount int64           `json:"entry_count"`
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("debt repository required")
	}
	return &service{repo: repo}, nil
}

// PostDebt accepts a zero amount so a fully paid order still leaves its one entry.
func (s *service) PostDebt(ctx context.Context, tx *gorm.DB, input PostDebtInput) (*models.CustomerDebtEntry, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debt amount must not be negative")
	}
	entry := &models.CustomerDebtEntry{
		CustomerID: input.CustomerID,
		OrderID:    input.OrderID,
		EntryType:  enums.DebtEntryOrderDebt,
		Amount:     input.Amount.Round(2),
		CreatedBy:  input.ActorID,
	}
	if err := s.repo.WithTx(tx).Insert(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order debt already posted").WithDetails(map[string]any{
				"order_id":   input.OrderID,
				"constraint": debtUniqueIndex,
			})
		}
		return nil, db.WrapPersistence(err, "insert debt entry")
	}
	return entry, nil
}

// PostPaymentCredit records money received after the order debt was posted.
// The stored amount is negative so the ledger sums to the balance.
func (s *service) PostPaymentCredit(ctx context.Context, tx *gorm.DB, input PostDebtInput) (*models.CustomerDebtEntry, error) {
	if err := validate(input); err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be greater than zero")
	}
	entry := &models.CustomerDebtEntry{
		CustomerID: input.CustomerID,
		OrderID:    input.OrderID,
		EntryType:  enums.DebtEntryPaymentCredit,
		Amount:     input.Amount.Round(2).Neg(),
		CreatedBy:  input.ActorID,
	}
	if err := s.repo.WithTx(tx).Insert(ctx, entry); err != nil {
		return nil, db.WrapPersistence(err, "insert payment credit")
	}
	return entry, nil
}

func (s *service) CustomerBalance(ctx context.Context, customerID uuid.UUID) (*Balance, error) {
	total, count, err := s.repo.SumByCustomer(ctx, customerID)
	if err != nil {
		return nil, db.WrapPersistence(err, "sum customer debt")
	}
	return &Balance{CustomerID: customerID, Balance: total, EntryCount: count}, nil
}

func (s *service) ListEntries(ctx context.Context, customerID uuid.UUID) ([]models.CustomerDebtEntry, error) {
	entries, err := s.repo.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, db.WrapPersistence(err, "list debt entries")
	}
	return entries, nil
}

func validate(input PostDebtInput) error {
	if input.CustomerID == uuid.Nil || input.OrderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id and order id are required")
	}
	return nil
}
