package inventory

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/internal/catalog"
	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/angelmondragon/stockflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
)

type fixture struct {
	svc   Service
	db    *gorm.DB
	cache *stubCache
}

type stubCache struct {
	mu       sync.Mutex
	products []uuid.UUID
}

func (c *stubCache) InvalidateStock(_ context.Context, productIDs ...uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = append(c.products, productIDs...)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	cache := &stubCache{}
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(conn),
		Catalog:     catalog.NewValidator(catalog.NewRepository(conn)),
		TxRunner:    client,
		Cache:       cache,
		Reservation: config.ReservationConfig{MaxRetries: 5, RetryBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return fixture{svc: svc, db: conn, cache: cache}
}

func (f fixture) seedKey(t *testing.T, onHand, reserved int) (uuid.UUID, uuid.UUID) {
	t.Helper()
	product := models.Product{SKU: "SKU-" + uuid.NewString()[:8], Name: "Widget", Type: enums.ProductTypeGoods, Status: enums.RecordStatusActive}
	warehouse := models.Warehouse{Code: "WH-" + uuid.NewString()[:8], Name: "Main", Type: enums.WarehouseTypeMain, Status: enums.RecordStatusActive}
	require.NoError(t, f.db.Create(&product).Error)
	require.NoError(t, f.db.Create(&warehouse).Error)
	if onHand > 0 || reserved > 0 {
		require.NoError(t, f.db.Create(&models.InventoryRecord{
			ProductID:   product.ID,
			WarehouseID: warehouse.ID,
			OnHandQty:   onHand,
			ReservedQty: reserved,
		}).Error)
	}
	return product.ID, warehouse.ID
}

func (f fixture) record(t *testing.T, productID, warehouseID uuid.UUID) models.InventoryRecord {
	t.Helper()
	var rec models.InventoryRecord
	require.NoError(t, f.db.Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).First(&rec).Error)
	return rec
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestReserveSkipsShortItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productA, wh := f.seedKey(t, 5, 0)
	productB, whB := f.seedKey(t, 1, 0)

	result, err := f.svc.ReserveInventory(ctx, []ReserveItem{
		{ProductID: productA, WarehouseID: wh, Quantity: 3},
		{ProductID: productA, WarehouseID: wh, Quantity: 4},
		{ProductID: productB, WarehouseID: whB, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, result.Reserved, 2)
	require.Len(t, result.Shortages, 1)

	shortage := result.Shortages[0]
	assert.Equal(t, productA, shortage.ProductID)
	assert.Equal(t, 4, shortage.Requested)
	assert.Equal(t, 2, shortage.Available)
	assert.Equal(t, 4, shortage.Shortfall)

	recA := f.record(t, productA, wh)
	assert.Equal(t, 3, recA.ReservedQty)
	assert.Equal(t, 5, recA.OnHandQty)
	assert.Equal(t, 1, f.record(t, productB, whB).ReservedQty)
	assert.ElementsMatch(t, []uuid.UUID{productA, productA, productB}, f.cache.products)
}

func TestReserveAllowPartialGrantsAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 10, 0)

	result, err := f.svc.ReserveInventory(ctx, []ReserveItem{
		{ProductID: product, WarehouseID: wh, Quantity: 15, AllowPartial: true},
	})
	require.NoError(t, err)
	require.Len(t, result.Reserved, 1)
	assert.Equal(t, 10, result.Reserved[0].Reserved)
	require.Len(t, result.Shortages, 1)
	assert.Equal(t, 5, result.Shortages[0].Shortfall)
	assert.Equal(t, 10, f.record(t, product, wh).ReservedQty)
}

func TestReserveMissingRecordIsFullShortage(t *testing.T) {
	f := newFixture(t)
	product, wh := f.seedKey(t, 0, 0)

	result, err := f.svc.ReserveInventory(context.Background(), []ReserveItem{
		{ProductID: product, WarehouseID: wh, Quantity: 2, AllowPartial: true},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Reserved)
	require.Len(t, result.Shortages, 1)
	assert.Equal(t, 0, result.Shortages[0].Available)
	assert.Equal(t, 2, result.Shortages[0].Shortfall)
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	f := newFixture(t)
	product, wh := f.seedKey(t, 5, 0)

	_, err := f.svc.ReserveInventory(context.Background(), []ReserveItem{{ProductID: product, WarehouseID: wh, Quantity: 0}})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	assert.Equal(t, 0, f.record(t, product, wh).ReservedQty)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	cases := []struct {
		name    string
		qty     int
		partial bool
	}{
		{name: "exact", qty: 1},
		{name: "partial", qty: 3, partial: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			product, wh := f.seedKey(t, 10, 0)

			const workers = 25
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				granted int
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					result, err := f.svc.ReserveInventory(ctx, []ReserveItem{
						{ProductID: product, WarehouseID: wh, Quantity: tc.qty, AllowPartial: tc.partial},
					})
					if err != nil {
						return
					}
					mu.Lock()
					for _, r := range result.Reserved {
						granted += r.Reserved
					}
					mu.Unlock()
				}()
			}
			wg.Wait()

			rec := f.record(t, product, wh)
			assert.Equal(t, granted, rec.ReservedQty)
			assert.Equal(t, 10, rec.ReservedQty)
			assert.LessOrEqual(t, rec.ReservedQty, rec.OnHandQty)
		})
	}
}

func TestReleaseIsIdempotentAndFloored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 10, 4)
	items := []StockItem{{ProductID: product, WarehouseID: wh, Quantity: 4}}

	require.NoError(t, f.svc.ReleaseReserved(ctx, items))
	require.NoError(t, f.svc.ReleaseReserved(ctx, items))
	rec := f.record(t, product, wh)
	assert.Equal(t, 0, rec.ReservedQty)
	assert.Equal(t, 10, rec.OnHandQty)

	missingProduct, missingWh := f.seedKey(t, 0, 0)
	require.NoError(t, f.svc.ReleaseReserved(ctx, []StockItem{{ProductID: missingProduct, WarehouseID: missingWh, Quantity: 1}}))
}

func TestCommitConsumesReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 20, 3)
	orderID := uuid.New()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Commit(ctx, tx, []StockItem{{ProductID: product, WarehouseID: wh, Quantity: 3}}, CommitRef{ReferenceID: orderID})
	})
	require.NoError(t, err)

	rec := f.record(t, product, wh)
	assert.Equal(t, 17, rec.OnHandQty)
	assert.Equal(t, 0, rec.ReservedQty)

	var movements []models.InventoryMovement
	require.NoError(t, f.db.Where("reference_id = ?", orderID).Find(&movements).Error)
	require.Len(t, movements, 1)
	assert.Equal(t, enums.MovementTypeSaleCommit, movements[0].MovementType)
	assert.Equal(t, -3, movements[0].QuantityDelta)
}

func TestCommitBeyondReservationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 20, 2)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.Commit(ctx, tx, []StockItem{{ProductID: product, WarehouseID: wh, Quantity: 3}}, CommitRef{})
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory), "got %v", err)

	rec := f.record(t, product, wh)
	assert.Equal(t, 20, rec.OnHandQty)
	assert.Equal(t, 2, rec.ReservedQty)
}

func TestAdjustChangesOnHandOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 0, 0)

	view, err := f.svc.Adjust(ctx, AdjustInput{ProductID: product, WarehouseID: wh, Delta: 5, Reason: enums.MovementTypeReceipt})
	require.NoError(t, err)
	assert.Equal(t, 5, view.OnHand)
	assert.Equal(t, 0, view.Reserved)

	_, err = f.svc.ReserveInventory(ctx, []ReserveItem{{ProductID: product, WarehouseID: wh, Quantity: 4}})
	require.NoError(t, err)

	_, err = f.svc.Adjust(ctx, AdjustInput{ProductID: product, WarehouseID: wh, Delta: -2, Reason: enums.MovementTypeWastage})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientInventory), "got %v", err)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 5, details["on_hand"])
	assert.Equal(t, 4, details["reserved"])

	view, err = f.svc.Adjust(ctx, AdjustInput{ProductID: product, WarehouseID: wh, Delta: -1, Reason: enums.MovementTypeStocktake})
	require.NoError(t, err)
	assert.Equal(t, 4, view.OnHand)
	assert.Equal(t, 4, view.Reserved)
	assert.Equal(t, 0, view.Available)

	var count int64
	require.NoError(t, f.db.Model(&models.InventoryMovement{}).Where("product_id = ?", product).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestAdjustValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 1, 0)

	_, err := f.svc.Adjust(ctx, AdjustInput{ProductID: product, WarehouseID: wh, Delta: 0, Reason: enums.MovementTypeReceipt})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Adjust(ctx, AdjustInput{ProductID: product, WarehouseID: wh, Delta: 1, Reason: enums.MovementTypeSaleCommit})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Adjust(ctx, AdjustInput{ProductID: uuid.New(), WarehouseID: wh, Delta: 1, Reason: enums.MovementTypeReceipt})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestGetRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 9, 2)

	view, err := f.svc.GetRecord(ctx, product, wh)
	require.NoError(t, err)
	assert.Equal(t, 9, view.OnHand)
	assert.Equal(t, 2, view.Reserved)
	assert.Equal(t, 7, view.Available)

	_, err = f.svc.GetRecord(ctx, product, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, whA := f.seedKey(t, 6, 2)
	whB := models.Warehouse{Code: "WH-B", Name: "Overflow", Type: enums.WarehouseTypeTransit, Status: enums.RecordStatusActive}
	require.NoError(t, f.db.Create(&whB).Error)
	require.NoError(t, f.db.Create(&models.InventoryRecord{ProductID: product, WarehouseID: whB.ID, OnHandQty: 3}).Error)

	results, err := f.svc.CheckAvailability(ctx, []AvailabilityItem{
		{ProductID: product, WarehouseID: &whA, Quantity: 5},
		{ProductID: product, Quantity: 7},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Available)
	assert.Equal(t, 4, results[0].AvailableQuantity)
	assert.Equal(t, 1, results[0].Shortfall)

	assert.True(t, results[1].Available)
	assert.Equal(t, 7, results[1].AvailableQuantity)
	assert.Equal(t, 0, results[1].Shortfall)

	assert.Equal(t, 2, f.record(t, product, whA).ReservedQty, "availability checks must not reserve")
}

func TestReservedNeverExceedsOnHand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product, wh := f.seedKey(t, 0, 0)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		qty := rng.Intn(5) + 1
		switch rng.Intn(4) {
		case 0:
			_, _ = f.svc.Adjust(ctx, AdjustInput{ProductID: product, WarehouseID: wh, Delta: qty, Reason: enums.MovementTypeReceipt})
		case 1:
			_, _ = f.svc.Adjust(ctx, AdjustInput{ProductID: product, WarehouseID: wh, Delta: -qty, Reason: enums.MovementTypeCorrection})
		case 2:
			_, err := f.svc.ReserveInventory(ctx, []ReserveItem{{ProductID: product, WarehouseID: wh, Quantity: qty, AllowPartial: rng.Intn(2) == 0}})
			require.NoError(t, err)
		case 3:
			require.NoError(t, f.svc.ReleaseReserved(ctx, []StockItem{{ProductID: product, WarehouseID: wh, Quantity: qty}}))
		}

		var rec models.InventoryRecord
		if err := f.db.Where("product_id = ? AND warehouse_id = ?", product, wh).First(&rec).Error; err != nil {
			continue
		}
		require.GreaterOrEqual(t, rec.ReservedQty, 0)
		require.LessOrEqual(t, rec.ReservedQty, rec.OnHandQty, "step %d", i)
	}
}

// failingRepo answers key mutations with a storage error and delegates the rest.
type failingRepo struct {
	Repository
	err error
}

func (r *failingRepo) WithTx(*gorm.DB) Repository { return r }

func (r *failingRepo) IncrementReserved(context.Context, uuid.UUID, uuid.UUID, int) (int64, error) {
	return 0, r.err
}

func (r *failingRepo) DecrementReserved(context.Context, uuid.UUID, uuid.UUID, int) (int64, error) {
	return 0, r.err
}

func (r *failingRepo) CommitReserved(context.Context, uuid.UUID, uuid.UUID, int) (int64, error) {
	return 0, r.err
}

func newFailingService(t *testing.T, err error) (Service, fixture) {
	t.Helper()
	f := newFixture(t)
	conn := f.db
	svc, nerr := NewService(ServiceParams{
		Repo:        &failingRepo{Repository: NewRepository(conn), err: err},
		Catalog:     catalog.NewValidator(catalog.NewRepository(conn)),
		TxRunner:    txFunc(func(ctx context.Context, fn func(tx *gorm.DB) error) error { return conn.WithContext(ctx).Transaction(fn) }),
		Reservation: config.ReservationConfig{MaxRetries: 2, RetryBackoff: time.Millisecond},
	})
	require.NoError(t, nerr)
	return svc, f
}

type txFunc func(ctx context.Context, fn func(tx *gorm.DB) error) error

func (f txFunc) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return f(ctx, fn) }

func TestLockFailuresSurfaceAsConcurrencyConflicts(t *testing.T) {
	for _, code := range []string{"40P01", "40001", "55P03"} {
		t.Run(code, func(t *testing.T) {
			svc, f := newFailingService(t, &pgconn.PgError{Code: code})
			ctx := context.Background()
			product, wh := f.seedKey(t, 10, 0)

			_, err := svc.Reserve(ctx, f.db, []ReserveItem{{ProductID: product, WarehouseID: wh, Quantity: 2}})
			assert.Equal(t, pkgerrors.CodeConcurrency, pkgerrors.CodeOf(err), "exact reserve: %v", err)

			_, err = svc.Reserve(ctx, f.db, []ReserveItem{{ProductID: product, WarehouseID: wh, Quantity: 2, AllowPartial: true}})
			assert.Equal(t, pkgerrors.CodeConcurrency, pkgerrors.CodeOf(err), "partial reserve: %v", err)

			err = svc.Release(ctx, f.db, []StockItem{{ProductID: product, WarehouseID: wh, Quantity: 1}})
			assert.Equal(t, pkgerrors.CodeConcurrency, pkgerrors.CodeOf(err), "release: %v", err)

			err = svc.Commit(ctx, f.db, []StockItem{{ProductID: product, WarehouseID: wh, Quantity: 1}}, CommitRef{})
			assert.Equal(t, pkgerrors.CodeConcurrency, pkgerrors.CodeOf(err), "commit: %v", err)
		})
	}
}

func TestUnclassifiedStorageFailureIsPersistenceError(t *testing.T) {
	svc, f := newFailingService(t, &pgconn.PgError{Code: "42P01"})
	product, wh := f.seedKey(t, 10, 0)

	_, err := svc.Reserve(context.Background(), f.db, []ReserveItem{{ProductID: product, WarehouseID: wh, Quantity: 2}})
	assert.Equal(t, pkgerrors.CodePersistence, pkgerrors.CodeOf(err))
	require.NotNil(t, pkgerrors.As(err))
	assert.True(t, pkgerrors.As(err).Retryable())
}
