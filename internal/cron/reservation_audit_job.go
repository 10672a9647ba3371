package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockflow-backend/internal/orders"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/metrics"
)

const maxDriftLogged = 20

type ReservationAuditJobParams struct {
	Logger    *logger.Logger
	Orders    openReservationReader
	Inventory reservedRecordReader
	Metrics   *metrics.EngineMetrics
}

type openReservationReader interface {
	SumOpenReservations(ctx context.Context) ([]orders.ReservationTotal, error)
}

type reservedRecordReader interface {
	ListReserved(ctx context.Context) ([]models.InventoryRecord, error)
}

// NewReservationAuditJob compares what open order lines hold with what the
// ledger says is reserved. It only reports; it never corrects.
func NewReservationAuditJob(params ReservationAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &reservationAuditJob{
		logg:      params.Logger,
		orders:    params.Orders,
		inventory: params.Inventory,
		metrics:   params.Metrics,
	}, nil
}

type reservationAuditJob struct {
	logg      *logger.Logger
	orders    openReservationReader
	inventory reservedRecordReader
	metrics   *metrics.EngineMetrics
}

type stockKey struct {
	product   uuid.UUID
	warehouse uuid.UUID
}

// Drift is one inventory key whose ledger reservation differs from its open lines.
type Drift struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Ledger      int
	OpenLines   int
}

func (j *reservationAuditJob) Name() string { return "reservation-audit" }

func (j *reservationAuditJob) Run(ctx context.Context) error {
	drift, err := j.audit(ctx)
	if err != nil {
		return err
	}
	j.metrics.SetDrift(len(drift))

	var deficit int
	for i, d := range drift {
		if d.Ledger < d.OpenLines {
			deficit++
		}
		if i < maxDriftLogged {
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
				"product_id":   d.ProductID,
				"warehouse_id": d.WarehouseID,
				"ledger":       d.Ledger,
				"open_lines":   d.OpenLines,
			}), "reservation drift")
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"drifted_keys": len(drift),
		"deficits":     deficit,
	}), "reservation audit complete")
	return nil
}

func (j *reservationAuditJob) audit(ctx context.Context) ([]Drift, error) {
	totals, err := j.orders.SumOpenReservations(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum open reservations: %w", err)
	}
	records, err := j.inventory.ListReserved(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reserved records: %w", err)
	}

	lines := make(map[stockKey]int, len(totals))
	for _, t := range totals {
		lines[stockKey{t.ProductID, t.WarehouseID}] += t.Reserved
	}
	ledger := make(map[stockKey]int, len(records))
	for _, r := range records {
		ledger[stockKey{r.ProductID, r.WarehouseID}] = r.ReservedQty
	}

	var drift []Drift
	for key, held := range lines {
		if ledger[key] != held {
			drift = append(drift, Drift{ProductID: key.product, WarehouseID: key.warehouse, Ledger: ledger[key], OpenLines: held})
		}
	}
	for key, reserved := range ledger {
		if _, ok := lines[key]; !ok {
			drift = append(drift, Drift{ProductID: key.product, WarehouseID: key.warehouse, Ledger: reserved})
		}
	}
	return drift, nil
}
