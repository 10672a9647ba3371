package debts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
)

func newService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func TestPostDebtAndBalance(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	customer, order := uuid.New(), uuid.New()

	entry, err := svc.PostDebt(ctx, conn, PostDebtInput{CustomerID: customer, OrderID: order, Amount: decimal.RequireFromString("150.00"), ActorID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, enums.DebtEntryOrderDebt, entry.EntryType)

	_, err = svc.PostPaymentCredit(ctx, conn, PostDebtInput{CustomerID: customer, OrderID: order, Amount: decimal.RequireFromString("40.50"), ActorID: uuid.New()})
	require.NoError(t, err)

	balance, err := svc.CustomerBalance(ctx, customer)
	require.NoError(t, err)
	assert.True(t, balance.Balance.Equal(decimal.RequireFromString("109.50")), "balance %s", balance.Balance)
	assert.EqualValues(t, 2, balance.EntryCount)

	entries, err := svc.ListEntries(ctx, customer)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestPostDebtRejectsSecondOrderDebt(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	input := PostDebtInput{CustomerID: uuid.New(), OrderID: uuid.New(), Amount: decimal.NewFromInt(10), ActorID: uuid.New()}

	_, err := svc.PostDebt(ctx, conn, input)
	require.NoError(t, err)

	_, err = svc.PostDebt(ctx, conn, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	var count int64
	require.NoError(t, conn.Model(&models.CustomerDebtEntry{}).Where("order_id = ? AND entry_type = ?", input.OrderID, enums.DebtEntryOrderDebt).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPostDebtValidation(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()

	_, err := svc.PostDebt(ctx, conn, PostDebtInput{CustomerID: uuid.New(), OrderID: uuid.New(), Amount: decimal.NewFromInt(-1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.PostDebt(ctx, conn, PostDebtInput{OrderID: uuid.New(), Amount: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.PostPaymentCredit(ctx, conn, PostDebtInput{CustomerID: uuid.New(), OrderID: uuid.New(), Amount: decimal.Zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPostDebtAcceptsZeroAmount(t *testing.T) {
	svc, conn := newService(t)
	customer := uuid.New()

	entry, err := svc.PostDebt(context.Background(), conn, PostDebtInput{CustomerID: customer, OrderID: uuid.New(), Amount: decimal.Zero, ActorID: uuid.New()})
	require.NoError(t, err)
	assert.True(t, entry.Amount.IsZero())

	balance, err := svc.CustomerBalance(context.Background(), customer)
	require.NoError(t, err)
	assert.True(t, balance.Balance.IsZero())
	assert.EqualValues(t, 1, balance.EntryCount)
}

type deadlockedRepo struct {
	Repository
}

func (r deadlockedRepo) WithTx(*gorm.DB) Repository { return r }

func (deadlockedRepo) Insert(context.Context, *models.CustomerDebtEntry) error {
	return &pgconn.PgError{Code: "40P01"}
}

func TestPostDebtDeadlockIsConcurrencyConflict(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(deadlockedRepo{Repository: NewRepository(conn)})
	require.NoError(t, err)

	_, err = svc.PostDebt(context.Background(), conn, PostDebtInput{CustomerID: uuid.New(), OrderID: uuid.New(), Amount: decimal.NewFromInt(5)})
	assert.Equal(t, pkgerrors.CodeConcurrency, pkgerrors.CodeOf(err), "got %v", err)
}
