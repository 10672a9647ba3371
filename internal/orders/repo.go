package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/angelmondragon/stockflow-backend/pkg/pagination"
)

const (
	orderNumberPrefix = "SO-"
	orderNumberStart  = 1000
)

// Repository persists the sales order aggregate (header plus lines).
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.SalesOrder) error
	CreateLines(ctx context.Context, lines []*models.SalesOrderLine) error
	ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []*models.SalesOrderLine) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error)
	FindLines(ctx context.Context, orderID uuid.UUID) ([]*models.SalesOrderLine, error)
	UpdateLineReservation(ctx context.Context, lineID uuid.UUID, reservedQty int) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.SalesOrderStatus, to enums.SalesOrderStatus, updates map[string]any) (int64, error)
	UpdateGuarded(ctx context.Context, id uuid.UUID, from []enums.SalesOrderStatus, updates map[string]any) (int64, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Page[models.SalesOrder], error)
	FindStaleOrders(ctx context.Context, statuses []enums.SalesOrderStatus, cutoff time.Time, limit int) ([]models.SalesOrder, error)
	SumOpenReservations(ctx context.Context) ([]ReservationTotal, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// ListFilters narrows ListOrders. Nil fields are ignored.
type ListFilters struct {
	Status     *enums.SalesOrderStatus
	CustomerID *uuid.UUID
}

// ReservationTotal is the reserved quantity open order lines hold for one stock key.
type ReservationTotal struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Reserved    int
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.SalesOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []*models.SalesOrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) ReplaceLines(ctx context.Context, orderID uuid.UUID, lines []*models.SalesOrderLine) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.SalesOrderLine{}).Error; err != nil {
		return err
	}
	for _, line := range lines {
		line.OrderID = orderID
	}
	return r.CreateLines(ctx, lines)
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	var order models.SalesOrder
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockOrder takes the row lock that serialises every transition of one order.
func (r *repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.SalesOrder, error) {
	var order models.SalesOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindLines(ctx context.Context, orderID uuid.UUID) ([]*models.SalesOrderLine, error) {
	var lines []*models.SalesOrderLine
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("line_number ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repository) UpdateLineReservation(ctx context.Context, lineID uuid.UUID, reservedQty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.SalesOrderLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{
			"reserved_qty": reservedQty,
			"updated_at":   r.db.NowFunc(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.SalesOrderStatus, to enums.SalesOrderStatus, updates map[string]any) (int64, error) {
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = to
	return r.UpdateGuarded(ctx, id, from, values)
}

// UpdateGuarded applies updates only while the order is still in one of from.
func (r *repository) UpdateGuarded(ctx context.Context, id uuid.UUID, from []enums.SalesOrderStatus, updates map[string]any) (int64, error) {
	if len(from) == 0 {
		return 0, errors.New("at least one expected status is required")
	}
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["updated_at"] = r.db.NowFunc()
	res := r.db.WithContext(ctx).
		Model(&models.SalesOrder{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Delete(&models.SalesOrderLine{}).Error; err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.SalesOrder{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ListOrders(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Page[models.SalesOrder], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.SalesOrder]{}, err
	}

	query := r.db.WithContext(ctx).Model(&models.SalesOrder{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.CustomerID != nil {
		query = query.Where("customer_id = ?", *filters.CustomerID)
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.SalesOrder
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return pagination.Page[models.SalesOrder]{}, err
	}
	return pagination.BuildPage(rows, params.Limit, func(o models.SalesOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (r *repository) FindStaleOrders(ctx context.Context, statuses []enums.SalesOrderStatus, cutoff time.Time, limit int) ([]models.SalesOrder, error) {
	var rows []models.SalesOrder
	query := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func (r *repository) SumOpenReservations(ctx context.Context) ([]ReservationTotal, error) {
	var rows []ReservationTotal
	err := r.db.WithContext(ctx).
		Table("sales_order_lines AS l").
		Select("l.product_id AS product_id, l.warehouse_id AS warehouse_id, SUM(l.reserved_qty) AS reserved").
		Joins("JOIN sales_orders o ON o.id = l.order_id").
		Where("o.status IN ?", OpenStatuses()).
		Group("l.product_id, l.warehouse_id").
		Scan(&rows).Error
	return rows, err
}

// NextOrderNumber draws from the Postgres sequence; sqlite falls back to max+1.
func (r *repository) NextOrderNumber(ctx context.Context) (string, error) {
	if r.db.Dialector.Name() == "postgres" {
		var next int64
		if err := r.db.WithContext(ctx).Raw("SELECT nextval('sales_order_number_seq')").Scan(&next).Error; err != nil {
			return "", err
		}
		return formatOrderNumber(next), nil
	}

	var last string
	err := r.db.WithContext(ctx).
		Model(&models.SalesOrder{}).
		Select("order_number").
		Order("order_number DESC").
		Limit(1).
		Scan(&last).Error
	if err != nil {
		return "", err
	}
	if last == "" {
		return formatOrderNumber(orderNumberStart), nil
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(last, orderNumberPrefix), 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse order number %q: %w", last, err)
	}
	return formatOrderNumber(n + 1), nil
}

func formatOrderNumber(n int64) string {
	return fmt.Sprintf("%s%06d", orderNumberPrefix, n)
}
