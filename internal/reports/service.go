package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/internal/debts"
	"github.com/angelmondragon/stockflow-backend/internal/inventory"
	"github.com/angelmondragon/stockflow-backend/pkg/db"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/metrics"
	"github.com/angelmondragon/stockflow-backend/pkg/redis"
)

// Store is the slice of the redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ReportKey(kind, id string) string
}

type stockSource interface {
	ListRecords(ctx context.Context, productID uuid.UUID) ([]inventory.RecordView, error)
}

type debtSource interface {
	CustomerBalance(ctx context.Context, customerID uuid.UUID) (*debts.Balance, error)
}

type catalogLookup interface {
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type ServiceParams struct {
	Stock   stockSource
	Debts   debtSource
	Catalog catalogLookup
	// Store may be nil; reports are then always computed from the database.
	Store   Store
	TTL     time.Duration
	Metrics *metrics.EngineMetrics
	Logger  *logger.Logger
}

// Service serves derived reports through a read-through cache. The cache is
// never consulted by reservation or commit paths.
type Service struct {
	stock   stockSource
	debts   debtSource
	catalog catalogLookup
	store   Store
	ttl     time.Duration
	metrics *metrics.EngineMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Stock == nil {
		return nil, fmt.Errorf("stock source required")
	}
	if params.Debts == nil {
		return nil, fmt.Errorf("debt source required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{
		stock:   params.Stock,
		debts:   params.Debts,
		catalog: params.Catalog,
		store:   params.Store,
		ttl:     ttl,
		metrics: params.Metrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *Service) StockReport(ctx context.Context, productID uuid.UUID) (*StockReport, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	var report StockReport
	if s.readCached(ctx, kindStock, productID, &report) {
		return &report, nil
	}

	products, err := s.catalog.FindProductsByIDs(ctx, []uuid.UUID{productID})
	if err != nil {
		return nil, db.WrapPersistence(err, "load product")
	}
	if _, ok := products[productID]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	records, err := s.stock.ListRecords(ctx, productID)
	if err != nil {
		return nil, err
	}
	fresh := buildStockReport(productID, records, s.now())
	s.writeCached(ctx, kindStock, productID, fresh)
	return fresh, nil
}

func (s *Service) CustomerDebtReport(ctx context.Context, customerID uuid.UUID) (*CustomerDebtReport, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	var report CustomerDebtReport
	if s.readCached(ctx, kindDebt, customerID, &report) {
		return &report, nil
	}

	if _, err := s.catalog.FindCustomer(ctx, customerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, db.WrapPersistence(err, "load customer")
	}
	balance, err := s.debts.CustomerBalance(ctx, customerID)
	if err != nil {
		return nil, err
	}
	fresh := &CustomerDebtReport{
		CustomerID:  customerID,
		Balance:     balance.Balance,
		EntryCount:  balance.EntryCount,
		GeneratedAt: s.now(),
	}
	s.writeCached(ctx, kindDebt, customerID, fresh)
	return fresh, nil
}

// InvalidateStock drops cached stock reports for the given products.
func (s *Service) InvalidateStock(ctx context.Context, productIDs ...uuid.UUID) {
	s.invalidate(ctx, kindStock, productIDs...)
}

func (s *Service) InvalidateCustomerDebt(ctx context.Context, customerID uuid.UUID) {
	s.invalidate(ctx, kindDebt, customerID)
}

func (s *Service) invalidate(ctx context.Context, kind string, ids ...uuid.UUID) {
	if s.store == nil || len(ids) == 0 {
		return
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, s.store.ReportKey(kind, id.String()))
	}
	if err := s.store.Del(ctx, keys...); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"report": kind, "keys": keys}), "report cache invalidation failed")
	}
}

func (s *Service) readCached(ctx context.Context, kind string, id uuid.UUID, dest any) bool {
	if s.store == nil {
		return false
	}
	raw, err := s.store.Get(ctx, s.store.ReportKey(kind, id.String()))
	switch {
	case err == nil:
	case redis.IsMiss(err):
		s.metrics.ObserveCache(kind, "miss")
		return false
	default:
		s.metrics.ObserveCache(kind, "error")
		s.logg.Warn(s.logg.WithField(ctx, "report", kind), "report cache read failed: "+err.Error())
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.metrics.ObserveCache(kind, "error")
		return false
	}
	s.metrics.ObserveCache(kind, "hit")
	return true
}

func (s *Service) writeCached(ctx context.Context, kind string, id uuid.UUID, value any) {
	if s.store == nil {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, s.store.ReportKey(kind, id.String()), payload, s.ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "report", kind), "report cache write failed: "+err.Error())
	}
}
