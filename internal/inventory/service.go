package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/internal/catalog"
	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/angelmondragon/stockflow-backend/pkg/db"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/metrics"
)

const defaultRetryBackoff = 10 * time.Millisecond

var errReserveRaced = errors.New("reservation lost compare-and-set race")

// Service is the inventory ledger. Tx-scoped methods run inside the caller's
// transaction; the rest open their own.
type Service interface {
	CheckAvailability(ctx context.Context, items []AvailabilityItem) ([]AvailabilityResult, error)
	Reserve(ctx context.Context, tx *gorm.DB, items []ReserveItem) (*ReserveResult, error)
	Release(ctx context.Context, tx *gorm.DB, items []StockItem) error
	Commit(ctx context.Context, tx *gorm.DB, items []StockItem, ref CommitRef) error
	Adjust(ctx context.Context, input AdjustInput) (*RecordView, error)
	GetRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*RecordView, error)
	ListRecords(ctx context.Context, productID uuid.UUID) ([]RecordView, error)
	ReserveInventory(ctx context.Context, items []ReserveItem) (*ReserveResult, error)
	ReleaseReserved(ctx context.Context, items []StockItem) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockCache is notified after stock-affecting transactions commit.
type StockCache interface {
	InvalidateStock(ctx context.Context, productIDs ...uuid.UUID)
}

type ServiceParams struct {
	Repo        Repository
	Catalog     *catalog.Validator
	TxRunner    txRunner
	Logger      *logger.Logger
	Metrics     *metrics.EngineMetrics
	Cache       StockCache
	Reservation config.ReservationConfig
}

type service struct {
	repo     Repository
	catalog  *catalog.Validator
	tx       txRunner
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	cache    StockCache
	retries  uint64
	interval time.Duration
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog validator required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	interval := params.Reservation.RetryBackoff
	if interval <= 0 {
		interval = defaultRetryBackoff
	}
	return &service{
		repo:     params.Repo,
		catalog:  params.Catalog,
		tx:       params.TxRunner,
		logg:     logg,
		metrics:  params.Metrics,
		cache:    params.Cache,
		retries:  params.Reservation.MaxRetries,
		interval: interval,
	}, nil
}

func (s *service) CheckAvailability(ctx context.Context, items []AvailabilityItem) ([]AvailabilityResult, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	results := make([]AvailabilityResult, 0, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}

		var available int
		if item.WarehouseID != nil {
			record, err := s.repo.FindRecord(ctx, item.ProductID, *item.WarehouseID)
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				available = 0
			case err != nil:
				return nil, db.WrapPersistence(err, "load inventory record")
			default:
				available = record.AvailableQty()
			}
		} else {
			total, err := s.repo.SumAvailable(ctx, item.ProductID)
			if err != nil {
				return nil, db.WrapPersistence(err, "sum available inventory")
			}
			available = max(total, 0)
		}

		results = append(results, AvailabilityResult{
			ProductID:         item.ProductID,
			WarehouseID:       item.WarehouseID,
			Requested:         item.Quantity,
			Available:         available >= item.Quantity,
			AvailableQuantity: available,
			Shortfall:         max(item.Quantity-available, 0),
		})
	}
	return results, nil
}

// Reserve treats items independently: a shortage on one never rolls back another.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, items []ReserveItem) (*ReserveResult, error) {
	if err := validateReserveItems(items); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	result := &ReserveResult{
		Reserved:  make([]ReservedItem, 0, len(items)),
		Shortages: make([]Shortage, 0),
	}

	for _, item := range items {
		var (
			granted int
			err     error
		)
		if item.AllowPartial {
			granted, err = s.reservePartial(ctx, repo, item)
		} else {
			granted, err = s.reserveExact(ctx, repo, item)
		}
		if err != nil {
			return nil, err
		}

		if granted > 0 {
			result.Reserved = append(result.Reserved, ReservedItem{
				ProductID:   item.ProductID,
				WarehouseID: item.WarehouseID,
				Requested:   item.Quantity,
				Reserved:    granted,
			})
		}
		if granted < item.Quantity {
			available, err := s.availableAt(ctx, repo, item.ProductID, item.WarehouseID)
			if err != nil {
				return nil, err
			}
			shortfall := item.Quantity - granted
			result.Shortages = append(result.Shortages, Shortage{
				ProductID:   item.ProductID,
				WarehouseID: item.WarehouseID,
				Requested:   item.Quantity,
				Available:   available,
				Shortfall:   shortfall,
			})
			s.metrics.AddShortfall(shortfall)
		}
	}
	return result, nil
}

func (s *service) reserveExact(ctx context.Context, repo Repository, item ReserveItem) (int, error) {
	rows, err := repo.IncrementReserved(ctx, item.ProductID, item.WarehouseID, item.Quantity)
	if err != nil {
		return 0, db.WrapPersistence(err, "reserve inventory")
	}
	if rows == 0 {
		return 0, nil
	}
	return item.Quantity, nil
}

// reservePartial grants min(requested, available). The grant is still applied by
// compare-and-set, so a concurrent reserver that got there first forces a re-read.
func (s *service) reservePartial(ctx context.Context, repo Repository, item ReserveItem) (int, error) {
	backoff := retry.WithMaxRetries(s.retries, retry.NewConstant(s.interval))
	granted, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (int, error) {
		available, err := s.availableAt(ctx, repo, item.ProductID, item.WarehouseID)
		if err != nil {
			return 0, err
		}
		grant := min(item.Quantity, available)
		if grant <= 0 {
			return 0, nil
		}
		rows, err := repo.IncrementReserved(ctx, item.ProductID, item.WarehouseID, grant)
		if err != nil {
			return 0, db.WrapPersistence(err, "reserve inventory")
		}
		if rows == 0 {
			s.metrics.IncConflict("retried")
			return 0, retry.RetryableError(errReserveRaced)
		}
		return grant, nil
	})
	if errors.Is(err, errReserveRaced) {
		s.metrics.IncConflict("exhausted")
		return 0, pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "reserve inventory").WithDetails(map[string]any{
			"product_id":   item.ProductID,
			"warehouse_id": item.WarehouseID,
		})
	}
	return granted, err
}

func (s *service) availableAt(ctx context.Context, repo Repository, productID, warehouseID uuid.UUID) (int, error) {
	record, err := repo.FindRecord(ctx, productID, warehouseID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, db.WrapPersistence(err, "load inventory record")
	}
	return record.AvailableQty(), nil
}

// Release is floored at zero and ignores unknown records, so repeating it is harmless.
func (s *service) Release(ctx context.Context, tx *gorm.DB, items []StockItem) error {
	if err := validateStockItems(items); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, item := range items {
		if _, err := repo.DecrementReserved(ctx, item.ProductID, item.WarehouseID, item.Quantity); err != nil {
			return db.WrapPersistence(err, "release inventory")
		}
	}
	return nil
}

func (s *service) Commit(ctx context.Context, tx *gorm.DB, items []StockItem, ref CommitRef) error {
	if err := validateStockItems(items); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	for _, item := range items {
		rows, err := repo.CommitReserved(ctx, item.ProductID, item.WarehouseID, item.Quantity)
		if err != nil {
			return db.WrapPersistence(err, "commit inventory")
		}
		if rows == 0 {
			details := map[string]any{
				"product_id":   item.ProductID,
				"warehouse_id": item.WarehouseID,
				"requested":    item.Quantity,
			}
			if record, ferr := repo.FindRecord(ctx, item.ProductID, item.WarehouseID); ferr == nil {
				details["reserved"] = record.ReservedQty
				details["on_hand"] = record.OnHandQty
			}
			return pkgerrors.New(pkgerrors.CodeInsufficientInventory, "reservation does not cover commit quantity").WithDetails(details)
		}

		movement := &models.InventoryMovement{
			ProductID:     item.ProductID,
			WarehouseID:   item.WarehouseID,
			MovementType:  enums.MovementTypeSaleCommit,
			QuantityDelta: -item.Quantity,
		}
		if ref.ReferenceID != uuid.Nil {
			movement.ReferenceID = &ref.ReferenceID
		}
		if ref.ActorID != uuid.Nil {
			movement.CreatedBy = &ref.ActorID
		}
		if err := repo.InsertMovement(ctx, movement); err != nil {
			return db.WrapPersistence(err, "record inventory movement")
		}
	}
	return nil
}

// Adjust changes on-hand only. It never touches reserved_qty.
func (s *service) Adjust(ctx context.Context, input AdjustInput) (*RecordView, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must not be zero")
	}
	if !input.Reason.IsAdjustmentReason() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid adjustment reason %q", input.Reason))
	}

	var view *RecordView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		key := []catalog.StockKey{{ProductID: input.ProductID, WarehouseID: input.WarehouseID}}
		if err := s.catalog.RequireKnownStockKeys(ctx, tx, key); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		if err := repo.EnsureRecord(ctx, input.ProductID, input.WarehouseID); err != nil {
			return db.WrapPersistence(err, "ensure inventory record")
		}
		current, err := repo.LockRecord(ctx, input.ProductID, input.WarehouseID)
		if err != nil {
			return db.WrapPersistence(err, "lock inventory record")
		}
		belowReserved := pkgerrors.New(pkgerrors.CodeInsufficientInventory, "adjustment would drop on-hand below reserved").WithDetails(map[string]any{
			"product_id":   input.ProductID,
			"warehouse_id": input.WarehouseID,
			"delta":        input.Delta,
			"on_hand":      current.OnHandQty,
			"reserved":     current.ReservedQty,
		})
		if current.OnHandQty+input.Delta < current.ReservedQty {
			return belowReserved
		}
		rows, err := repo.AdjustOnHand(ctx, input.ProductID, input.WarehouseID, input.Delta)
		if err != nil {
			return db.WrapPersistence(err, "adjust on-hand")
		}
		if rows == 0 {
			return belowReserved
		}

		movement := &models.InventoryMovement{
			ProductID:     input.ProductID,
			WarehouseID:   input.WarehouseID,
			MovementType:  input.Reason,
			QuantityDelta: input.Delta,
			Note:          input.Note,
		}
		if input.ActorID != uuid.Nil {
			movement.CreatedBy = &input.ActorID
		}
		if err := repo.InsertMovement(ctx, movement); err != nil {
			return db.WrapPersistence(err, "record inventory movement")
		}

		record, err := repo.FindRecord(ctx, input.ProductID, input.WarehouseID)
		if err != nil {
			return db.WrapPersistence(err, "reload inventory record")
		}
		view = toView(*record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, input.ProductID)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id":   input.ProductID,
		"warehouse_id": input.WarehouseID,
		"delta":        input.Delta,
		"reason":       input.Reason,
	}), "inventory adjusted")
	return view, nil
}

func (s *service) GetRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*RecordView, error) {
	record, err := s.repo.FindRecord(ctx, productID, warehouseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
		}
		return nil, db.WrapPersistence(err, "load inventory record")
	}
	return toView(*record), nil
}

func (s *service) ListRecords(ctx context.Context, productID uuid.UUID) ([]RecordView, error) {
	return listRecords(ctx, s.repo, productID)
}

// Reader serves record views straight from the repository.
type Reader struct {
	repo Repository
}

func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

func (r *Reader) ListRecords(ctx context.Context, productID uuid.UUID) ([]RecordView, error) {
	return listRecords(ctx, r.repo, productID)
}

func listRecords(ctx context.Context, repo Repository, productID uuid.UUID) ([]RecordView, error) {
	records, err := repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, db.WrapPersistence(err, "list inventory records")
	}
	views := make([]RecordView, 0, len(records))
	for _, record := range records {
		views = append(views, *toView(record))
	}
	return views, nil
}

// ReserveInventory is the standalone form of Reserve for callers without a transaction.
func (s *service) ReserveInventory(ctx context.Context, items []ReserveItem) (*ReserveResult, error) {
	var result *ReserveResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.Reserve(ctx, tx, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, reserveProducts(items)...)
	return result, nil
}

func (s *service) ReleaseReserved(ctx context.Context, items []StockItem) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.Release(ctx, tx, items)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, stockProducts(items)...)
	return nil
}

func (s *service) invalidate(ctx context.Context, productIDs ...uuid.UUID) {
	if s.cache == nil || len(productIDs) == 0 {
		return
	}
	s.cache.InvalidateStock(ctx, productIDs...)
}

func validateReserveItems(items []ReserveItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.WarehouseID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id and warehouse id are required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}
	}
	return nil
}

func validateStockItems(items []StockItem) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.WarehouseID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id and warehouse id are required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}
	}
	return nil
}

func toView(record models.InventoryRecord) *RecordView {
	return &RecordView{
		ProductID:   record.ProductID,
		WarehouseID: record.WarehouseID,
		OnHand:      record.OnHandQty,
		Reserved:    record.ReservedQty,
		Available:   record.AvailableQty(),
	}
}

func reserveProducts(items []ReserveItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func stockProducts(items []StockItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
