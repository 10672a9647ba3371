package reservation

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/internal/inventory"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox/payloads"
)

// Ledger is the slice of the inventory ledger the coordinator drives.
type Ledger interface {
	Reserve(ctx context.Context, tx *gorm.DB, items []inventory.ReserveItem) (*inventory.ReserveResult, error)
	Release(ctx context.Context, tx *gorm.DB, items []inventory.StockItem) error
	Commit(ctx context.Context, tx *gorm.DB, items []inventory.StockItem, ref inventory.CommitRef) error
}

// LineWriter persists a line's reserved quantity.
type LineWriter interface {
	SetLineReservation(ctx context.Context, tx *gorm.DB, lineID uuid.UUID, reservedQty int) error
}

// Outcome splits lines by whether their full quantity is now held.
type Outcome struct {
	ReservedLines []uuid.UUID
	ShortageLines []payloads.LineShortage
}

// HasShortages reports whether any line is short.
func (o Outcome) HasShortages() bool {
	return len(o.ShortageLines) > 0
}

// Coordinator keeps sales order lines and inventory reservations in step.
// Every method runs inside the caller's transaction and mutates lines in place.
type Coordinator struct {
	ledger Ledger
	lines  LineWriter
}

func NewCoordinator(ledger Ledger, lines LineWriter) (*Coordinator, error) {
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if lines == nil {
		return nil, fmt.Errorf("line writer required")
	}
	return &Coordinator{ledger: ledger, lines: lines}, nil
}

// ReserveLines reserves what it can for each line. Shortages are reported, not raised.
func (c *Coordinator) ReserveLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine) (Outcome, error) {
	return c.reserveRemainder(ctx, tx, lines)
}

// TopUpLines retries only the unreserved remainder of each line.
func (c *Coordinator) TopUpLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine) (Outcome, error) {
	return c.reserveRemainder(ctx, tx, lines)
}

func (c *Coordinator) reserveRemainder(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine) (Outcome, error) {
	for _, line := range byStockKey(lines) {
		remaining := line.Shortfall()
		if remaining <= 0 {
			continue
		}
		result, err := c.ledger.Reserve(ctx, tx, []inventory.ReserveItem{{
			ProductID:    line.ProductID,
			WarehouseID:  line.WarehouseID,
			Quantity:     remaining,
			AllowPartial: true,
		}})
		if err != nil {
			return Outcome{}, err
		}
		granted := 0
		for _, r := range result.Reserved {
			granted += r.Reserved
		}
		if granted > 0 {
			if err := c.lines.SetLineReservation(ctx, tx, line.ID, line.ReservedQty+granted); err != nil {
				return Outcome{}, err
			}
			line.ReservedQty += granted
		}
	}

	outcome := Outcome{}
	for _, line := range lines {
		if shortfall := line.Shortfall(); shortfall > 0 {
			outcome.ShortageLines = append(outcome.ShortageLines, payloads.LineShortage{
				LineNumber:  line.LineNumber,
				ProductID:   line.ProductID,
				WarehouseID: line.WarehouseID,
				Requested:   line.Quantity,
				Reserved:    line.ReservedQty,
				Shortfall:   shortfall,
			})
			continue
		}
		outcome.ReservedLines = append(outcome.ReservedLines, line.ID)
	}
	return outcome, nil
}

// ReleaseLines hands back whatever each line holds and returns the total released.
func (c *Coordinator) ReleaseLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine) (int, error) {
	released := 0
	for _, line := range byStockKey(lines) {
		if line.ReservedQty <= 0 {
			continue
		}
		item := inventory.StockItem{ProductID: line.ProductID, WarehouseID: line.WarehouseID, Quantity: line.ReservedQty}
		if err := c.ledger.Release(ctx, tx, []inventory.StockItem{item}); err != nil {
			return 0, err
		}
		if err := c.lines.SetLineReservation(ctx, tx, line.ID, 0); err != nil {
			return 0, err
		}
		released += line.ReservedQty
		line.ReservedQty = 0
	}
	return released, nil
}

// CommitLines consumes the full quantity of every line. A line that is not
// fully reserved fails the whole commit.
func (c *Coordinator) CommitLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine, orderID, actorID uuid.UUID) (int, error) {
	for _, line := range lines {
		if line.ReservedQty != line.Quantity {
			return 0, pkgerrors.New(pkgerrors.CodeInsufficientInventory, "order line is not fully reserved").WithDetails(map[string]any{
				"line_number":  line.LineNumber,
				"product_id":   line.ProductID,
				"warehouse_id": line.WarehouseID,
				"quantity":     line.Quantity,
				"reserved":     line.ReservedQty,
			})
		}
	}

	committed := 0
	ref := inventory.CommitRef{ReferenceID: orderID, ActorID: actorID}
	for _, line := range byStockKey(lines) {
		item := inventory.StockItem{ProductID: line.ProductID, WarehouseID: line.WarehouseID, Quantity: line.Quantity}
		if err := c.ledger.Commit(ctx, tx, []inventory.StockItem{item}, ref); err != nil {
			return 0, err
		}
		if err := c.lines.SetLineReservation(ctx, tx, line.ID, 0); err != nil {
			return 0, err
		}
		line.ReservedQty = 0
		committed += line.Quantity
	}
	return committed, nil
}

// byStockKey orders lines by (product, warehouse) so concurrent orders touch
// inventory rows in the same sequence.
func byStockKey(lines []*models.SalesOrderLine) []*models.SalesOrderLine {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b *models.SalesOrderLine) int {
		if c := bytes.Compare(a.ProductID[:], b.ProductID[:]); c != 0 {
			return c
		}
		return bytes.Compare(a.WarehouseID[:], b.WarehouseID[:])
	})
	return sorted
}
