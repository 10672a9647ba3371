package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, payment *models.SalesOrderPayment) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SalesOrderPayment, error)
	UpdateOrderBalances(ctx context.Context, order *models.SalesOrder) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, payment *models.SalesOrderPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.SalesOrderPayment, error) {
	var rows []models.SalesOrderPayment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateOrderBalances writes paid/outstanding guarded by the status the caller locked.
func (r *repository) UpdateOrderBalances(ctx context.Context, order *models.SalesOrder) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SalesOrder{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(map[string]any{
			"paid_amount":        order.PaidAmount,
			"outstanding_amount": order.OutstandingAmount,
			"updated_at":         r.db.NowFunc(),
		})
	return res.RowsAffected, res.Error
}
