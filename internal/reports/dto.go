package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockflow-backend/internal/inventory"
)

const (
	kindStock = "stock"
	kindDebt  = "debt"
)

// StockReport is the per-warehouse position of one product plus totals.
type StockReport struct {
	ProductID      uuid.UUID              `json:"product_id"`
	Warehouses     []inventory.RecordView `json:"warehouses"`
	TotalOnHand    int                    `json:"total_on_hand"`
	TotalReserved  int                    `json:"total_reserved"`
	TotalAvailable int                    `json:"total_available"`
	GeneratedAt    time.Time              `json:"generated_at"`
}

type CustomerDebtReport struct {
	CustomerID  uuid.UUID       `json:"customer_id"`
	Balance     decimal.Decimal `json:"balance"`
	EntryCount  int64           `json:"entry_count"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func buildStockReport(productID uuid.UUID, records []inventory.RecordView, now time.Time) *StockReport {
	report := &StockReport{
		ProductID:   productID,
		Warehouses:  records,
		GeneratedAt: now,
	}
	if report.Warehouses == nil {
		report.Warehouses = []inventory.RecordView{}
	}
	for _, rec := range records {
		report.TotalOnHand += rec.OnHand
		report.TotalReserved += rec.Reserved
		report.TotalAvailable += rec.Available
	}
	return report
}
