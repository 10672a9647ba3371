package inventory

import (
	"context"

	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists inventory_records and inventory_movements. Every mutating
// statement is conditional so the row-level guard lives in the WHERE clause.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*models.InventoryRecord, error)
	LockRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*models.InventoryRecord, error)
	SumAvailable(ctx context.Context, productID uuid.UUID) (int, error)
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryRecord, error)
	ListReserved(ctx context.Context) ([]models.InventoryRecord, error)
	EnsureRecord(ctx context.Context, productID, warehouseID uuid.UUID) error
	IncrementReserved(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (int64, error)
	DecrementReserved(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (int64, error)
	CommitReserved(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (int64, error)
	AdjustOnHand(ctx context.Context, productID, warehouseID uuid.UUID, delta int) (int64, error)
	InsertMovement(ctx context.Context, movement *models.InventoryMovement) error
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

func (r *repository) model(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.InventoryRecord{})
}

func keyScope(productID, warehouseID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("product_id = ? AND warehouse_id = ?", productID, warehouseID)
	}
}

func (r *repository) FindRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	if err := r.db.WithContext(ctx).Scopes(keyScope(productID, warehouseID)).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) LockRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(keyScope(productID, warehouseID)).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) SumAvailable(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int64
	err := r.model(ctx).
		Select("COALESCE(SUM(on_hand_qty - reserved_qty), 0)").
		Where("product_id = ?", productID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("warehouse_id ASC").
		Find(&records).Error
	return records, err
}

// ListReserved returns every record currently holding a reservation.
func (r *repository) ListReserved(ctx context.Context) ([]models.InventoryRecord, error) {
	var rows []models.InventoryRecord
	err := r.model(ctx).Where("reserved_qty > 0").Find(&rows).Error
	return rows, err
}

func (r *repository) EnsureRecord(ctx context.Context, productID, warehouseID uuid.UUID) error {
	record := models.InventoryRecord{ProductID: productID, WarehouseID: warehouseID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
}

// IncrementReserved is the compare-and-set reserve: it only applies when the
// record still has qty units available at statement time.
func (r *repository) IncrementReserved(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (int64, error) {
	res := r.model(ctx).
		Scopes(keyScope(productID, warehouseID)).
		Where("on_hand_qty - reserved_qty >= ?", qty).
		Updates(map[string]any{
			"reserved_qty": gorm.Expr("reserved_qty + ?", qty),
			"updated_at":   r.db.NowFunc(),
		})
	return res.RowsAffected, res.Error
}

// DecrementReserved floors reserved_qty at zero.
func (r *repository) DecrementReserved(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (int64, error) {
	res := r.model(ctx).
		Scopes(keyScope(productID, warehouseID)).
		Updates(map[string]any{
			"reserved_qty": gorm.Expr("CASE WHEN reserved_qty >= ? THEN reserved_qty - ? ELSE 0 END", qty, qty),
			"updated_at":   r.db.NowFunc(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CommitReserved(ctx context.Context, productID, warehouseID uuid.UUID, qty int) (int64, error) {
	res := r.model(ctx).
		Scopes(keyScope(productID, warehouseID)).
		Where("reserved_qty >= ? AND on_hand_qty >= ?", qty, qty).
		Updates(map[string]any{
			"reserved_qty": gorm.Expr("reserved_qty - ?", qty),
			"on_hand_qty":  gorm.Expr("on_hand_qty - ?", qty),
			"updated_at":   r.db.NowFunc(),
		})
	return res.RowsAffected, res.Error
}

// AdjustOnHand refuses to drop on-hand below what is already reserved.
func (r *repository) AdjustOnHand(ctx context.Context, productID, warehouseID uuid.UUID, delta int) (int64, error) {
	res := r.model(ctx).
		Scopes(keyScope(productID, warehouseID)).
		Where("on_hand_qty + ? >= reserved_qty AND on_hand_qty + ? >= 0", delta, delta).
		Updates(map[string]any{
			"on_hand_qty": gorm.Expr("on_hand_qty + ?", delta),
			"updated_at":  r.db.NowFunc(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) InsertMovement(ctx context.Context, movement *models.InventoryMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}
