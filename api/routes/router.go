package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stockflow-backend/api/controllers"
	inventorycontrollers "github.com/angelmondragon/stockflow-backend/api/controllers/inventory"
	ordercontrollers "github.com/angelmondragon/stockflow-backend/api/controllers/orders"
	reportcontrollers "github.com/angelmondragon/stockflow-backend/api/controllers/reports"
	"github.com/angelmondragon/stockflow-backend/api/middleware"
	"github.com/angelmondragon/stockflow-backend/internal/inventory"
	"github.com/angelmondragon/stockflow-backend/internal/orders"
	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	ordersSvc orders.Service,
	inventorySvc inventory.Service,
	reportsSvc reportcontrollers.Reader,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	deps := map[string]controllers.Pinger{"db": dbP}
	var idempotencyStore redis.IdempotencyStore
	if redisClient != nil {
		deps["redis"] = redisClient
		idempotencyStore = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	can := func(perm enums.Permission) func(http.Handler) http.Handler {
		return middleware.RequirePermission(perm, logg)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/sales-orders", func(r chi.Router) {
			r.With(can(enums.PermissionCreateSalesOrders)).Post("/", ordercontrollers.Create(ordersSvc, logg))
			r.With(can(enums.PermissionViewSalesOrders)).Get("/", ordercontrollers.List(ordersSvc, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.With(can(enums.PermissionViewSalesOrders)).Get("/", ordercontrollers.Get(ordersSvc, logg))
				r.With(can(enums.PermissionUpdateSalesOrders)).Put("/", ordercontrollers.Update(ordersSvc, logg))
				r.With(can(enums.PermissionDeleteSalesOrders)).Delete("/", ordercontrollers.Delete(ordersSvc, logg))

				r.With(can(enums.PermissionSubmitSalesOrder)).Post("/submit", ordercontrollers.Submit(ordersSvc, logg))
				r.With(can(enums.PermissionApproveSalesOrder)).Post("/approve", ordercontrollers.Approve(ordersSvc, logg))
				r.With(can(enums.PermissionCompleteSalesOrder)).Post("/complete", ordercontrollers.Complete(ordersSvc, logg))
				r.With(can(enums.PermissionCancelSalesOrder)).Post("/cancel", ordercontrollers.Cancel(ordersSvc, logg))

				r.With(can(enums.PermissionRecordSalesPayments)).Post("/payments", ordercontrollers.RecordPayment(ordersSvc, logg))
				r.With(can(enums.PermissionRecordSalesPayments)).Get("/payments", ordercontrollers.ListPayments(ordersSvc, logg))
			})
		})

		r.Route("/inventory", func(r chi.Router) {
			r.With(can(enums.PermissionViewInventory)).Post("/availability", inventorycontrollers.Availability(inventorySvc, logg))
			r.With(can(enums.PermissionViewInventory)).Get("/records/{productId}/{warehouseId}", inventorycontrollers.Record(inventorySvc, logg))
			r.With(can(enums.PermissionManageInventory)).Post("/reserve", inventorycontrollers.Reserve(inventorySvc, logg))
			r.With(can(enums.PermissionManageInventory)).Post("/release", inventorycontrollers.Release(inventorySvc, logg))
			r.With(can(enums.PermissionManageInventory)).Post("/adjustments", inventorycontrollers.Adjust(inventorySvc, logg))
		})

		r.Route("/reports", func(r chi.Router) {
			r.Use(can(enums.PermissionViewReports))
			r.Get("/stock/{productId}", reportcontrollers.Stock(reportsSvc, logg))
			r.Get("/customers/{customerId}/debt", reportcontrollers.CustomerDebt(reportsSvc, logg))
		})
	})

	return r
}
