package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
)

// StockKey names one (product, warehouse) pair referenced by an order line or stock call.
type StockKey struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
}

// Validator turns master-data lookups into typed engine errors.
type Validator struct {
	repo Repository
}

func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo}
}

// RequireActiveCustomer fails with NotFound for unknown customers and Validation for inactive ones.
func (v *Validator) RequireActiveCustomer(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	customer, err := v.repo.WithTx(tx).FindCustomer(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found").WithDetails(map[string]any{"customer_id": id})
		}
		return db.WrapPersistence(err, "load customer")
	}
	if !customer.Status.IsActive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer is inactive").WithDetails(map[string]any{"customer_id": id})
	}
	return nil
}

// RequireActiveStockKeys checks every referenced product and warehouse exists and is active.
func (v *Validator) RequireActiveStockKeys(ctx context.Context, tx *gorm.DB, keys []StockKey) error {
	return v.requireStockKeys(ctx, tx, keys, true)
}

// RequireKnownStockKeys only checks existence; stock may still be counted for retired items.
func (v *Validator) RequireKnownStockKeys(ctx context.Context, tx *gorm.DB, keys []StockKey) error {
	return v.requireStockKeys(ctx, tx, keys, false)
}

func (v *Validator) requireStockKeys(ctx context.Context, tx *gorm.DB, keys []StockKey, activeOnly bool) error {
	productIDs := make([]uuid.UUID, 0, len(keys))
	warehouseIDs := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		if k.ProductID == uuid.Nil || k.WarehouseID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id and warehouse id are required")
		}
		productIDs = append(productIDs, k.ProductID)
		warehouseIDs = append(warehouseIDs, k.WarehouseID)
	}

	repo := v.repo.WithTx(tx)
	products, err := repo.FindProductsByIDs(ctx, productIDs)
	if err != nil {
		return db.WrapPersistence(err, "load products")
	}
	warehouses, err := repo.FindWarehousesByIDs(ctx, warehouseIDs)
	if err != nil {
		return db.WrapPersistence(err, "load warehouses")
	}

	for _, k := range keys {
		product, ok := products[k.ProductID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found").WithDetails(map[string]any{"product_id": k.ProductID})
		}
		if activeOnly && !product.Status.IsActive() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is inactive", product.SKU)).WithDetails(map[string]any{"product_id": k.ProductID})
		}
		warehouse, ok := warehouses[k.WarehouseID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "warehouse not found").WithDetails(map[string]any{"warehouse_id": k.WarehouseID})
		}
		if activeOnly && !warehouse.Status.IsActive() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("warehouse %s is inactive", warehouse.Code)).WithDetails(map[string]any{"warehouse_id": k.WarehouseID})
		}
	}
	return nil
}
