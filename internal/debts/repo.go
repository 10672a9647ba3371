package debts

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.CustomerDebtEntry) error
	SumByCustomer(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, int64, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CustomerDebtEntry, error)
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

func (r *repository) Insert(ctx context.Context, entry *models.CustomerDebtEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) SumByCustomer(ctx context.Context, customerID uuid.UUID) (decimal.Decimal, int64, error) {
	var entries []models.CustomerDebtEntry
	if err := r.db.WithContext(ctx).
		Select("amount").
		Where("customer_id = ?", customerID).
		Find(&entries).Error; err != nil {
		return decimal.Zero, 0, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, int64(len(entries)), nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]models.CustomerDebtEntry, error) {
	var entries []models.CustomerDebtEntry
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}
