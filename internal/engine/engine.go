// Package engine assembles the fulfillment services over one database handle.
package engine

import (
	"fmt"

	"github.com/angelmondragon/stockflow-backend/internal/catalog"
	"github.com/angelmondragon/stockflow-backend/internal/debts"
	"github.com/angelmondragon/stockflow-backend/internal/inventory"
	"github.com/angelmondragon/stockflow-backend/internal/orders"
	"github.com/angelmondragon/stockflow-backend/internal/payments"
	"github.com/angelmondragon/stockflow-backend/internal/reports"
	"github.com/angelmondragon/stockflow-backend/internal/reservation"
	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/angelmondragon/stockflow-backend/pkg/db"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/metrics"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox"
)

type Params struct {
	Config  *config.Config
	DB      *db.Client
	Store   reports.Store
	Metrics *metrics.EngineMetrics
	Logger  *logger.Logger
}

type Engine struct {
	Orders        orders.Service
	Inventory     inventory.Service
	Reports       *reports.Service
	Debts         debts.Service
	OrdersRepo    orders.Repository
	InventoryRepo inventory.Repository
	OutboxRepo    *outbox.Repository
}

func New(params Params) (*Engine, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("database client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	conn := params.DB.DB()

	catalogRepo := catalog.NewRepository(conn)
	validator := catalog.NewValidator(catalogRepo)
	inventoryRepo := inventory.NewRepository(conn)

	debtSvc, err := debts.NewService(debts.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("debt service: %w", err)
	}

	store := params.Store
	if !params.Config.Cache.Enabled {
		store = nil
	}
	reportSvc, err := reports.NewService(reports.ServiceParams{
		Stock:   inventory.NewReader(inventoryRepo),
		Debts:   debtSvc,
		Catalog: catalogRepo,
		Store:   store,
		TTL:     params.Config.Cache.ReportTTL,
		Metrics: params.Metrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("report service: %w", err)
	}

	inventorySvc, err := inventory.NewService(inventory.ServiceParams{
		Repo:        inventoryRepo,
		Catalog:     validator,
		TxRunner:    params.DB,
		Logger:      logg,
		Metrics:     params.Metrics,
		Cache:       reportSvc,
		Reservation: params.Config.Reservation,
	})
	if err != nil {
		return nil, fmt.Errorf("inventory service: %w", err)
	}

	ordersRepo := orders.NewRepository(conn)
	coordinator, err := reservation.NewCoordinator(inventorySvc, orders.NewLineWriter(ordersRepo))
	if err != nil {
		return nil, fmt.Errorf("reservation coordinator: %w", err)
	}
	processor, err := payments.NewProcessor(payments.NewRepository(conn), debtSvc)
	if err != nil {
		return nil, fmt.Errorf("payment processor: %w", err)
	}

	outboxRepo := outbox.NewRepository(conn)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:         ordersRepo,
		TxRunner:     params.DB,
		Outbox:       outbox.NewService(outboxRepo, logg),
		Catalog:      validator,
		Reservations: coordinator,
		Debts:        debtSvc,
		Payments:     processor,
		Cache:        reportSvc,
		Metrics:      params.Metrics,
		Logger:       logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	return &Engine{
		Orders:        ordersSvc,
		Inventory:     inventorySvc,
		Reports:       reportSvc,
		Debts:         debtSvc,
		OrdersRepo:    ordersRepo,
		InventoryRepo: inventoryRepo,
		OutboxRepo:    outboxRepo,
	}, nil
}
