package inventory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/api/middleware"
	internalinventory "github.com/angelmondragon/stockflow-backend/internal/inventory"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
)

type stubInventoryService struct {
	check   func(ctx context.Context, items []internalinventory.AvailabilityItem) ([]internalinventory.AvailabilityResult, error)
	reserve func(ctx context.Context, items []internalinventory.ReserveItem) (*internalinventory.ReserveResult, error)
	adjust  func(ctx context.Context, input internalinventory.AdjustInput) (*internalinventory.RecordView, error)
	record  func(ctx context.Context, productID, warehouseID uuid.UUID) (*internalinventory.RecordView, error)
}

func (s *stubInventoryService) CheckAvailability(ctx context.Context, items []internalinventory.AvailabilityItem) ([]internalinventory.AvailabilityResult, error) {
	return s.check(ctx, items)
}

func (s *stubInventoryService) Reserve(ctx context.Context, tx *gorm.DB, items []internalinventory.ReserveItem) (*internalinventory.ReserveResult, error) {
	panic("not implemented")
}

func (s *stubInventoryService) Release(ctx context.Context, tx *gorm.DB, items []internalinventory.StockItem) error {
	panic("not implemented")
}

func (s *stubInventoryService) Commit(ctx context.Context, tx *gorm.DB, items []internalinventory.StockItem, ref internalinventory.CommitRef) error {
	panic("not implemented")
}

func (s *stubInventoryService) Adjust(ctx context.Context, input internalinventory.AdjustInput) (*internalinventory.RecordView, error) {
	return s.adjust(ctx, input)
}

func (s *stubInventoryService) GetRecord(ctx context.Context, productID, warehouseID uuid.UUID) (*internalinventory.RecordView, error) {
	return s.record(ctx, productID, warehouseID)
}

func (s *stubInventoryService) ListRecords(ctx context.Context, productID uuid.UUID) ([]internalinventory.RecordView, error) {
	panic("not implemented")
}

func (s *stubInventoryService) ReserveInventory(ctx context.Context, items []internalinventory.ReserveItem) (*internalinventory.ReserveResult, error) {
	return s.reserve(ctx, items)
}

func (s *stubInventoryService) ReleaseReserved(ctx context.Context, items []internalinventory.StockItem) error {
	return nil
}

func TestAvailabilityDecodesItems(t *testing.T) {
	productID := uuid.New()
	svc := &stubInventoryService{check: func(ctx context.Context, items []internalinventory.AvailabilityItem) ([]internalinventory.AvailabilityResult, error) {
		if len(items) != 1 || items[0].ProductID != productID || items[0].WarehouseID != nil {
			t.Fatalf("unexpected items %+v", items)
		}
		return []internalinventory.AvailabilityResult{{ProductID: productID, Requested: 4, Available: true, AvailableQuantity: 10}}, nil
	}}

	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":4}]}`
	resp := httptest.NewRecorder()
	Availability(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestReserveRejectsNonPositiveQuantity(t *testing.T) {
	svc := &stubInventoryService{reserve: func(ctx context.Context, items []internalinventory.ReserveItem) (*internalinventory.ReserveResult, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","warehouse_id":"` + uuid.NewString() + `","quantity":-2}]}`
	resp := httptest.NewRecorder()
	Reserve(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdjustMapsReasonAndActor(t *testing.T) {
	actorID := uuid.New()
	productID := uuid.New()
	warehouseID := uuid.New()
	var captured internalinventory.AdjustInput
	svc := &stubInventoryService{adjust: func(ctx context.Context, input internalinventory.AdjustInput) (*internalinventory.RecordView, error) {
		captured = input
		return &internalinventory.RecordView{ProductID: productID, WarehouseID: warehouseID, OnHand: 25}, nil
	}}

	body := `{"product_id":"` + productID.String() + `","warehouse_id":"` + warehouseID.String() + `","delta":5,"reason":"receipt","note":" dock 4 "}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), actorID.String()))
	resp := httptest.NewRecorder()
	Adjust(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.ActorID != actorID || captured.Reason != enums.MovementTypeReceipt || captured.Delta != 5 {
		t.Fatalf("unexpected input %+v", captured)
	}
	if captured.ProductID != productID || captured.WarehouseID != warehouseID {
		t.Fatalf("unexpected stock key %+v", captured)
	}
	if captured.Note == nil || *captured.Note != "dock 4" {
		t.Fatalf("expected trimmed note")
	}
}

func TestAdjustSurfacesInsufficientInventory(t *testing.T) {
	svc := &stubInventoryService{adjust: func(ctx context.Context, input internalinventory.AdjustInput) (*internalinventory.RecordView, error) {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "adjustment would drop on-hand below reserved")
	}}
	body := `{"product_id":"` + uuid.NewString() + `","warehouse_id":"` + uuid.NewString() + `","delta":-50,"reason":"wastage"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()
	Adjust(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAdjustRejectsSaleCommitReason(t *testing.T) {
	body := `{"product_id":"` + uuid.NewString() + `","warehouse_id":"` + uuid.NewString() + `","delta":-1,"reason":"sale_commit"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), uuid.NewString()))
	resp := httptest.NewRecorder()
	Adjust(&stubInventoryService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRecordReadsPathKeys(t *testing.T) {
	productID, warehouseID := uuid.New(), uuid.New()
	svc := &stubInventoryService{record: func(ctx context.Context, p, w uuid.UUID) (*internalinventory.RecordView, error) {
		if p != productID || w != warehouseID {
			t.Fatalf("unexpected key %s/%s", p, w)
		}
		return &internalinventory.RecordView{ProductID: p, WarehouseID: w, OnHand: 9, Reserved: 2, Available: 7}, nil
	}}
	router := chi.NewRouter()
	router.Get("/records/{productId}/{warehouseId}", Record(svc, nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/records/"+productID.String()+"/"+warehouseID.String(), nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"available":7`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/records/not-a-uuid/"+warehouseID.String(), nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
