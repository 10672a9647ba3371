package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	reportcontrollers "github.com/angelmondragon/stockflow-backend/api/controllers/reports"
	"github.com/angelmondragon/stockflow-backend/internal/inventory"
	"github.com/angelmondragon/stockflow-backend/internal/orders"
	"github.com/angelmondragon/stockflow-backend/internal/reports"
	pkgAuth "github.com/angelmondragon/stockflow-backend/pkg/auth"
	"github.com/angelmondragon/stockflow-backend/pkg/config"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/metrics"
	"github.com/angelmondragon/stockflow-backend/pkg/pagination"
	"github.com/angelmondragon/stockflow-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

// stubOrdersService panics on anything a test did not wire.
type stubOrdersService struct {
	orders.Service
	approved []uuid.UUID
}

func (s *stubOrdersService) ListOrders(ctx context.Context, params orders.ListOrdersParams) (pagination.Page[orders.OrderView], error) {
	return pagination.Page[orders.OrderView]{Items: []orders.OrderView{}}, nil
}

func (s *stubOrdersService) ApproveOrder(ctx context.Context, id, actorID uuid.UUID) (*orders.OrderView, error) {
	s.approved = append(s.approved, id)
	return &orders.OrderView{ID: id, Status: enums.SalesOrderStatusApproved}, nil
}

type stubInventoryService struct {
	inventory.Service
}

func (stubInventoryService) CheckAvailability(ctx context.Context, items []inventory.AvailabilityItem) ([]inventory.AvailabilityResult, error) {
	return []inventory.AvailabilityResult{}, nil
}

func (stubInventoryService) GetRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*inventory.RecordView, error) {
	return &inventory.RecordView{ProductID: productID, WarehouseID: warehouseID, OnHand: 3, Available: 3}, nil
}

type stubReports struct {
	reportcontrollers.Reader
}

func (stubReports) StockReport(ctx context.Context, productID uuid.UUID) (*reports.StockReport, error) {
	return &reports.StockReport{ProductID: productID}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "stockflow", ExpirationMinutes: 60},
	}
}

func buildToken(t *testing.T, cfg *config.Config, perms ...enums.Permission) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:      uuid.New(),
		Permissions: perms,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func newTestRouter(cfg *config.Config, ordersSvc orders.Service, gatherer prometheus.Gatherer) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(cfg, logg, stubPinger{}, (*redis.Client)(nil), gatherer, ordersSvc, stubInventoryService{}, stubReports{})
}

func TestHealthRoutesArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), &stubOrdersService{}, nil)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsExposesEngineCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := metrics.NewEngineMetrics(reg)
	engine.ObserveCache("stock", "hit")

	router := newTestRouter(testConfig(), &stubOrdersService{}, reg)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "stockflow_report_cache_requests_total") {
		t.Fatalf("expected cache counter in scrape output")
	}
}

func TestAPIRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig(), &stubOrdersService{}, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/sales-orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestListSalesOrdersRequiresViewPermission(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubOrdersService{}, nil)

	denied := httptest.NewRequest(http.MethodGet, "/api/v1/sales-orders", nil)
	denied.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionViewInventory))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, denied)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	allowed := httptest.NewRequest(http.MethodGet, "/api/v1/sales-orders", nil)
	allowed.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionViewSalesOrders))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, allowed)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestApproveRouteUsesApprovePermission(t *testing.T) {
	cfg := testConfig()
	svc := &stubOrdersService{}
	router := newTestRouter(cfg, svc, nil)
	orderID := uuid.New()

	denied := httptest.NewRequest(http.MethodPost, "/api/v1/sales-orders/"+orderID.String()+"/approve", nil)
	denied.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionSubmitSalesOrder))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, denied)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	allowed := httptest.NewRequest(http.MethodPost, "/api/v1/sales-orders/"+orderID.String()+"/approve", nil)
	allowed.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionApproveSalesOrder))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, allowed)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.approved) != 1 || svc.approved[0] != orderID {
		t.Fatalf("expected approve for %s, got %v", orderID, svc.approved)
	}
}

func TestReportsRequireViewReports(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubOrdersService{}, nil)
	path := "/api/v1/reports/stock/" + uuid.NewString()

	denied := httptest.NewRequest(http.MethodGet, path, nil)
	denied.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionViewInventory))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, denied)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	allowed := httptest.NewRequest(http.MethodGet, path, nil)
	allowed.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionViewReports))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, allowed)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestInventoryRecordRequiresViewInventory(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubOrdersService{}, nil)
	path := "/api/v1/inventory/records/" + uuid.NewString() + "/" + uuid.NewString()

	denied := httptest.NewRequest(http.MethodGet, path, nil)
	denied.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionViewSalesOrders))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, denied)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	allowed := httptest.NewRequest(http.MethodGet, path, nil)
	allowed.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.PermissionViewInventory))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, allowed)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"available":3`) {
		t.Fatalf("expected record body, got %s", resp.Body.String())
	}
}
