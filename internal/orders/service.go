package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockflow-backend/internal/catalog"
	"github.com/angelmondragon/stockflow-backend/internal/debts"
	"github.com/angelmondragon/stockflow-backend/internal/payments"
	"github.com/angelmondragon/stockflow-backend/internal/reservation"
	"github.com/angelmondragon/stockflow-backend/pkg/db"
	"github.com/angelmondragon/stockflow-backend/pkg/db/models"
	"github.com/angelmondragon/stockflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockflow-backend/pkg/errors"
	"github.com/angelmondragon/stockflow-backend/pkg/logger"
	"github.com/angelmondragon/stockflow-backend/pkg/metrics"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox"
	"github.com/angelmondragon/stockflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/stockflow-backend/pkg/pagination"
)

const draftExpiredReason = "draft expired"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reservationCoordinator interface {
	ReserveLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine) (reservation.Outcome, error)
	TopUpLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine) (reservation.Outcome, error)
	ReleaseLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine) (int, error)
	CommitLines(ctx context.Context, tx *gorm.DB, lines []*models.SalesOrderLine, orderID, actorID uuid.UUID) (int, error)
}

type debtPoster interface {
	PostDebt(ctx context.Context, tx *gorm.DB, input debts.PostDebtInput) (*models.CustomerDebtEntry, error)
}

type paymentProcessor interface {
	RecordPayment(ctx context.Context, tx *gorm.DB, order *models.SalesOrder, input payments.RecordPaymentInput) (*models.SalesOrderPayment, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.SalesOrderPayment, error)
}

// ReportCache is told which derived reports went stale after a commit.
type ReportCache interface {
	InvalidateStock(ctx context.Context, productIDs ...uuid.UUID)
	InvalidateCustomerDebt(ctx context.Context, customerID uuid.UUID)
}

// Service is the sales order state machine. Each operation is one transaction
// holding the order row lock; transitions are never retried here.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*MutationResult, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error)
	ListOrders(ctx context.Context, params ListOrdersParams) (pagination.Page[OrderView], error)
	UpdateOrder(ctx context.Context, input UpdateOrderInput) (*MutationResult, error)
	SubmitOrder(ctx context.Context, id, actorID uuid.UUID) (*OrderView, error)
	ApproveOrder(ctx context.Context, id, actorID uuid.UUID) (*OrderView, error)
	CompleteOrder(ctx context.Context, id, actorID uuid.UUID) (*OrderView, error)
	CancelOrder(ctx context.Context, input CancelOrderInput) (*OrderView, error)
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*PaymentResult, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]PaymentView, error)
	DeleteOrder(ctx context.Context, id, actorID uuid.UUID) error
	ExpireStaleDrafts(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type ServiceParams struct {
	Repo         Repository
	TxRunner     txRunner
	Outbox       outboxPublisher
	Catalog      *catalog.Validator
	Reservations reservationCoordinator
	Debts        debtPoster
	Payments     paymentProcessor
	Cache        ReportCache
	Metrics      *metrics.EngineMetrics
	Logger       *logger.Logger
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outboxPublisher
	catalog      *catalog.Validator
	reservations reservationCoordinator
	debts        debtPoster
	payments     paymentProcessor
	cache        ReportCache
	metrics      *metrics.EngineMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog validator required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation coordinator required")
	}
	if params.Debts == nil {
		return nil, fmt.Errorf("debt poster required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment processor required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:         params.Repo,
		tx:           params.TxRunner,
		outbox:       params.Outbox,
		catalog:      params.Catalog,
		reservations: params.Reservations,
		debts:        params.Debts,
		payments:     params.Payments,
		cache:        params.Cache,
		metrics:      params.Metrics,
		logg:         logg,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*MutationResult, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if err := validateLines(input.Lines); err != nil {
		return nil, err
	}

	status := enums.SalesOrderStatusPendingApproval
	if input.SaveAsDraft {
		status = enums.SalesOrderStatusDraft
	}

	var result *MutationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.catalog.RequireActiveCustomer(ctx, tx, input.CustomerID); err != nil {
			return err
		}
		if err := s.catalog.RequireActiveStockKeys(ctx, tx, stockKeys(input.Lines)); err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		number, err := repo.NextOrderNumber(ctx)
		if err != nil {
			return persistenceErr(err, "allocate order number")
		}

		lines, total := buildLines(input.Lines)
		order := &models.SalesOrder{
			OrderNumber:       number,
			CustomerID:        input.CustomerID,
			Status:            status,
			TotalAmount:       total,
			PaidAmount:        decimal.Zero,
			OutstandingAmount: total,
			Notes:             trimmedNotes(input.Notes),
			CreatedBy:         input.ActorID,
		}
		if status == enums.SalesOrderStatusPendingApproval {
			submitted := s.now()
			order.SubmittedAt = &submitted
		}
		if err := repo.CreateOrder(ctx, order); err != nil {
			return persistenceErr(err, "create sales order")
		}
		for _, line := range lines {
			line.OrderID = order.ID
		}
		if err := repo.CreateLines(ctx, lines); err != nil {
			return persistenceErr(err, "create sales order lines")
		}

		outcome, err := s.reservations.ReserveLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		if err := s.emit(ctx, tx, enums.EventSalesOrderCreated, order.ID, input.ActorID, payloads.SalesOrderEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
			Shortages:   outcome.ShortageLines,
		}); err != nil {
			return err
		}

		result = &MutationResult{
			Order:              toOrderView(order, lines),
			InventoryShortages: nonNilShortages(outcome.ShortageLines),
		}
		return nil
	})
	s.observe(status, err)
	if err != nil {
		return nil, err
	}

	s.invalidateStock(ctx, lineInputProducts(input.Lines)...)
	s.logg.Info(s.orderCtx(ctx, result.Order.ID, map[string]any{
		"order_number": result.Order.OrderNumber,
		"status":       result.Order.Status,
		"shortages":    len(result.InventoryShortages),
	}), "sales order created")
	return result, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*OrderView, error) {
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load sales order")
	}
	return toOrderView(order, nil), nil
}

func (s *service) ListOrders(ctx context.Context, params ListOrdersParams) (pagination.Page[OrderView], error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Page[OrderView]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return pagination.Page[OrderView]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	page, err := s.repo.ListOrders(ctx, ListFilters{Status: params.Status, CustomerID: params.CustomerID}, params.Params)
	if err != nil {
		return pagination.Page[OrderView]{}, persistenceErr(err, "list sales orders")
	}
	views := make([]OrderView, 0, len(page.Items))
	for i := range page.Items {
		views = append(views, *toOrderView(&page.Items[i], nil))
	}
	return pagination.Page[OrderView]{Items: views, NextCursor: page.NextCursor}, nil
}

func (s *service) UpdateOrder(ctx context.Context, input UpdateOrderInput) (*MutationResult, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.CustomerID == nil && input.Lines == nil && input.Notes == nil && !input.ClearNotes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}
	if input.Lines != nil {
		if err := validateLines(input.Lines); err != nil {
			return nil, err
		}
	}

	var (
		result   *MutationResult
		touched  []uuid.UUID
		customer uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !IsMutable(order.Status) {
			return invalidTransition(order.Status, "update")
		}

		updates := map[string]any{}
		if input.CustomerID != nil && *input.CustomerID != order.CustomerID {
			if err := s.catalog.RequireActiveCustomer(ctx, tx, *input.CustomerID); err != nil {
				return err
			}
			updates["customer_id"] = *input.CustomerID
			order.CustomerID = *input.CustomerID
		}
		if input.ClearNotes {
			updates["notes"] = nil
			order.Notes = nil
		} else if input.Notes != nil {
			order.Notes = trimmedNotes(input.Notes)
			updates["notes"] = order.Notes
		}

		lines, err := repo.FindLines(ctx, order.ID)
		if err != nil {
			return persistenceErr(err, "load sales order lines")
		}
		touched = lineProducts(lines)

		shortages := shortagesOf(lines)
		if input.Lines != nil {
			if err := s.catalog.RequireActiveStockKeys(ctx, tx, stockKeys(input.Lines)); err != nil {
				return err
			}
			if _, err := s.reservations.ReleaseLines(ctx, tx, lines); err != nil {
				return err
			}
			var total decimal.Decimal
			lines, total = buildLines(input.Lines)
			if err := repo.ReplaceLines(ctx, order.ID, lines); err != nil {
				return persistenceErr(err, "replace sales order lines")
			}
			outcome, err := s.reservations.ReserveLines(ctx, tx, lines)
			if err != nil {
				return err
			}
			shortages = outcome.ShortageLines
			touched = append(touched, lineProducts(lines)...)

			order.TotalAmount = total
			order.OutstandingAmount = total.Sub(order.PaidAmount)
			updates["total_amount"] = order.TotalAmount
			updates["outstanding_amount"] = order.OutstandingAmount
		}

		rows, err := repo.UpdateGuarded(ctx, order.ID, []enums.SalesOrderStatus{order.Status}, updates)
		if err != nil {
			return persistenceErr(err, "update sales order")
		}
		if rows == 0 {
			return concurrencyErr(order.ID)
		}

		if err := s.emit(ctx, tx, enums.EventSalesOrderUpdated, order.ID, input.ActorID, payloads.SalesOrderEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
			Shortages:   shortages,
		}); err != nil {
			return err
		}

		order.UpdatedAt = s.now()
		customer = order.CustomerID
		result = &MutationResult{Order: toOrderView(order, lines), InventoryShortages: nonNilShortages(shortages)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStock(ctx, touched...)
	s.logg.Info(s.orderCtx(ctx, input.OrderID, map[string]any{"customer_id": customer}), "sales order updated")
	return result, nil
}

func (s *service) SubmitOrder(ctx context.Context, id, actorID uuid.UUID) (*OrderView, error) {
	to := enums.SalesOrderStatusPendingApproval
	view, err := s.simpleTransition(ctx, id, actorID, to, enums.EventSalesOrderSubmitted, func(order *models.SalesOrder, now time.Time) map[string]any {
		order.SubmittedAt = &now
		return map[string]any{"submitted_at": now}
	})
	s.observe(to, err)
	return view, err
}

func (s *service) ApproveOrder(ctx context.Context, id, actorID uuid.UUID) (*OrderView, error) {
	to := enums.SalesOrderStatusApproved
	view, err := s.simpleTransition(ctx, id, actorID, to, enums.EventSalesOrderApproved, func(order *models.SalesOrder, now time.Time) map[string]any {
		order.ApprovedBy = &actorID
		order.ApprovedAt = &now
		return map[string]any{"approved_by": actorID, "approved_at": now}
	})
	s.observe(to, err)
	return view, err
}

// simpleTransition covers edges that only move the status and stamp who/when.
func (s *service) simpleTransition(
	ctx context.Context,
	id, actorID uuid.UUID,
	to enums.SalesOrderStatus,
	eventType enums.OutboxEventType,
	stamp func(order *models.SalesOrder, now time.Time) map[string]any,
) (*OrderView, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var view *OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, id)
		if err != nil {
			return err
		}
		from := order.Status
		if !CanTransition(from, to) {
			return invalidTransition(from, to.String())
		}

		now := s.now()
		updates := stamp(order, now)
		rows, err := repo.TransitionStatus(ctx, order.ID, []enums.SalesOrderStatus{from}, to, updates)
		if err != nil {
			return persistenceErr(err, "transition sales order")
		}
		if rows == 0 {
			return concurrencyErr(order.ID)
		}
		order.Status = to
		order.UpdatedAt = now

		lines, err := repo.FindLines(ctx, order.ID)
		if err != nil {
			return persistenceErr(err, "load sales order lines")
		}
		if err := s.emit(ctx, tx, eventType, order.ID, actorID, payloads.SalesOrderEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CustomerID:     order.CustomerID,
			Status:         to,
			PreviousStatus: from,
			TotalAmount:    order.TotalAmount,
			Shortages:      shortagesOf(lines),
		}); err != nil {
			return err
		}
		view = toOrderView(order, lines)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.orderCtx(ctx, id, map[string]any{"status": to}), "sales order transitioned")
	return view, nil
}

// CompleteOrder commits every line's stock, posts the order debt once and
// closes the order, all in one transaction.
func (s *service) CompleteOrder(ctx context.Context, id, actorID uuid.UUID) (*OrderView, error) {
	to := enums.SalesOrderStatusCompleted
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var (
		view     *OrderView
		products []uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, id)
		if err != nil {
			return err
		}
		from := order.Status
		if !CanTransition(from, to) {
			return invalidTransition(from, to.String())
		}

		lines, err := repo.FindLines(ctx, order.ID)
		if err != nil {
			return persistenceErr(err, "load sales order lines")
		}
		products = lineProducts(lines)

		outcome, err := s.reservations.TopUpLines(ctx, tx, lines)
		if err != nil {
			return err
		}
		if outcome.HasShortages() {
			return pkgerrors.New(pkgerrors.CodeInsufficientInventory, "order lines are not fully reserved").WithDetails(map[string]any{
				"shortages": outcome.ShortageLines,
			})
		}
		committed, err := s.reservations.CommitLines(ctx, tx, lines, order.ID, actorID)
		if err != nil {
			return err
		}

		now := s.now()
		rows, err := repo.TransitionStatus(ctx, order.ID, []enums.SalesOrderStatus{from}, to, map[string]any{
			"completed_by": actorID,
			"completed_at": now,
		})
		if err != nil {
			return persistenceErr(err, "transition sales order")
		}
		if rows == 0 {
			return concurrencyErr(order.ID)
		}
		order.Status = to
		order.CompletedBy = &actorID
		order.CompletedAt = &now
		order.UpdatedAt = now

		entry, err := s.debts.PostDebt(ctx, tx, debts.PostDebtInput{
			CustomerID: order.CustomerID,
			OrderID:    order.ID,
			Amount:     order.OutstandingAmount,
			ActorID:    actorID,
		})
		if err != nil {
			return err
		}
		debt := entry.Amount

		if err := s.emit(ctx, tx, enums.EventSalesOrderCompleted, order.ID, actorID, payloads.SalesOrderCompletedEvent{
			OrderID:      order.ID,
			OrderNumber:  order.OrderNumber,
			CustomerID:   order.CustomerID,
			TotalAmount:  order.TotalAmount,
			DebtAmount:   debt,
			CommittedQty: committed,
		}); err != nil {
			return err
		}
		view = toOrderView(order, lines)
		return nil
	})
	s.observe(to, err)
	if err != nil {
		return nil, err
	}

	s.invalidateStock(ctx, products...)
	s.invalidateDebt(ctx, view.CustomerID)
	s.logg.Info(s.orderCtx(ctx, id, map[string]any{"status": to, "debt": view.OutstandingAmount.StringFixed(2)}), "sales order completed")
	return view, nil
}

// CancelOrder releases every reservation the order holds. A nil actor marks a system cancel.
func (s *service) CancelOrder(ctx context.Context, input CancelOrderInput) (*OrderView, error) {
	to := enums.SalesOrderStatusCancelled
	var (
		view     *OrderView
		products []uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		from := order.Status
		if !CanTransition(from, to) {
			return invalidTransition(from, to.String())
		}

		lines, err := repo.FindLines(ctx, order.ID)
		if err != nil {
			return persistenceErr(err, "load sales order lines")
		}
		products = lineProducts(lines)
		released, err := s.reservations.ReleaseLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		now := s.now()
		updates := map[string]any{"cancelled_at": now}
		order.CancelledAt = &now
		if input.ActorID != uuid.Nil {
			updates["cancelled_by"] = input.ActorID
			order.CancelledBy = &input.ActorID
		}
		if reason := strings.TrimSpace(input.Reason); reason != "" {
			updates["cancel_reason"] = reason
			order.CancelReason = &reason
		}
		rows, err := repo.TransitionStatus(ctx, order.ID, []enums.SalesOrderStatus{from}, to, updates)
		if err != nil {
			return persistenceErr(err, "transition sales order")
		}
		if rows == 0 {
			return concurrencyErr(order.ID)
		}
		order.Status = to
		order.UpdatedAt = now

		if err := s.emit(ctx, tx, enums.EventSalesOrderCancelled, order.ID, input.ActorID, payloads.SalesOrderCancelledEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			PreviousStatus: from,
			ReleasedQty:    released,
			Reason:         strings.TrimSpace(input.Reason),
		}); err != nil {
			return err
		}
		view = toOrderView(order, lines)
		return nil
	})
	s.observe(to, err)
	if err != nil {
		return nil, err
	}

	s.invalidateStock(ctx, products...)
	s.logg.Info(s.orderCtx(ctx, input.OrderID, map[string]any{"status": to}), "sales order cancelled")
	return view, nil
}

func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*PaymentResult, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *PaymentResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !AcceptsPayment(order.Status) {
			return invalidTransition(order.Status, "payment")
		}

		payment, err := s.payments.RecordPayment(ctx, tx, order, payments.RecordPaymentInput{
			Amount:    input.Amount,
			Method:    input.Method,
			Reference: input.Reference,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return err
		}

		if err := s.emit(ctx, tx, enums.EventSalesOrderPaymentRecorded, order.ID, input.ActorID, payloads.PaymentRecordedEvent{
			OrderID:           order.ID,
			PaymentID:         payment.ID,
			Amount:            payment.Amount,
			Method:            payment.Method,
			PaidAmount:        order.PaidAmount,
			OutstandingAmount: order.OutstandingAmount,
		}); err != nil {
			return err
		}
		result = &PaymentResult{Order: toOrderView(order, nil), Payment: toPaymentView(payment)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Order.Status == enums.SalesOrderStatusCompleted {
		s.invalidateDebt(ctx, result.Order.CustomerID)
	}
	s.logg.Info(s.orderCtx(ctx, input.OrderID, map[string]any{
		"amount":      result.Payment.Amount.StringFixed(2),
		"outstanding": result.Order.OutstandingAmount.StringFixed(2),
	}), "sales order payment recorded")
	return result, nil
}

func (s *service) ListPayments(ctx context.Context, orderID uuid.UUID) ([]PaymentView, error) {
	if _, err := s.repo.FindOrder(ctx, orderID); err != nil {
		return nil, notFoundOr(err, "load sales order")
	}
	rows, err := s.payments.ListPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	views := make([]PaymentView, 0, len(rows))
	for i := range rows {
		views = append(views, *toPaymentView(&rows[i]))
	}
	return views, nil
}

// DeleteOrder hard-deletes a draft after handing back its reservations.
func (s *service) DeleteOrder(ctx context.Context, id, actorID uuid.UUID) error {
	if actorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var products []uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockOrder(ctx, repo, id)
		if err != nil {
			return err
		}
		if !IsDeletable(order.Status) {
			return invalidTransition(order.Status, "deleted")
		}
		lines, err := repo.FindLines(ctx, order.ID)
		if err != nil {
			return persistenceErr(err, "load sales order lines")
		}
		products = lineProducts(lines)
		if _, err := s.reservations.ReleaseLines(ctx, tx, lines); err != nil {
			return err
		}
		if err := repo.DeleteOrder(ctx, order.ID); err != nil {
			return persistenceErr(err, "delete sales order")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidateStock(ctx, products...)
	s.logg.Info(s.orderCtx(ctx, id, nil), "sales order deleted")
	return nil
}

// ExpireStaleDrafts cancels drafts untouched since cutoff. Orders that moved on
// concurrently are skipped; other failures are collected.
func (s *service) ExpireStaleDrafts(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	stale, err := s.repo.FindStaleOrders(ctx, []enums.SalesOrderStatus{enums.SalesOrderStatusDraft}, cutoff, limit)
	if err != nil {
		return 0, persistenceErr(err, "find stale drafts")
	}

	var (
		expired int
		errs    error
	)
	for _, order := range stale {
		_, err := s.CancelOrder(ctx, CancelOrderInput{OrderID: order.ID, Reason: draftExpiredReason})
		switch {
		case err == nil:
			expired++
		case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			continue
		default:
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", order.OrderNumber, err))
		}
	}
	return expired, errs
}

func (s *service) lockOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.SalesOrder, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	order, err := repo.LockOrder(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "lock sales order")
	}
	return order, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID, actorID uuid.UUID, data any) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateSalesOrder,
		AggregateID:   orderID,
		Data:          data,
		OccurredAt:    s.now(),
	}
	if actorID != uuid.Nil {
		event.Actor = &outbox.ActorRef{UserID: actorID}
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return persistenceErr(err, "emit outbox event")
	}
	return nil
}

func (s *service) observe(to enums.SalesOrderStatus, err error) {
	result := "ok"
	if err != nil {
		result = string(pkgerrors.CodeOf(err))
	}
	s.metrics.ObserveTransition(to.String(), result)
}

func (s *service) invalidateStock(ctx context.Context, productIDs ...uuid.UUID) {
	if s.cache == nil || len(productIDs) == 0 {
		return
	}
	s.cache.InvalidateStock(ctx, productIDs...)
}

func (s *service) invalidateDebt(ctx context.Context, customerID uuid.UUID) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateCustomerDebt(ctx, customerID)
}

func (s *service) orderCtx(ctx context.Context, orderID uuid.UUID, fields map[string]any) context.Context {
	ctx = s.logg.WithOrderID(ctx, orderID.String())
	if len(fields) == 0 {
		return ctx
	}
	return s.logg.WithFields(ctx, fields)
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	for i, line := range lines {
		if line.ProductID == uuid.Nil || line.WarehouseID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: product id and warehouse id are required", i+1))
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: quantity must be greater than zero", i+1))
		}
		if !line.UnitPrice.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: unit price must be greater than zero", i+1))
		}
	}
	return nil
}

func buildLines(inputs []LineInput) ([]*models.SalesOrderLine, decimal.Decimal) {
	lines := make([]*models.SalesOrderLine, 0, len(inputs))
	total := decimal.Zero
	for i, in := range inputs {
		price := in.UnitPrice.Round(2)
		lineTotal := price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2)
		lines = append(lines, &models.SalesOrderLine{
			LineNumber:  i + 1,
			ProductID:   in.ProductID,
			WarehouseID: in.WarehouseID,
			Quantity:    in.Quantity,
			UnitPrice:   price,
			LineTotal:   lineTotal,
		})
		total = total.Add(lineTotal)
	}
	return lines, total
}

func shortagesOf(lines []*models.SalesOrderLine) []payloads.LineShortage {
	var out []payloads.LineShortage
	for _, line := range lines {
		if shortfall := line.Shortfall(); shortfall > 0 {
			out = append(out, payloads.LineShortage{
				LineNumber:  line.LineNumber,
				ProductID:   line.ProductID,
				WarehouseID: line.WarehouseID,
				Requested:   line.Quantity,
				Reserved:    line.ReservedQty,
				Shortfall:   shortfall,
			})
		}
	}
	return out
}

func nonNilShortages(in []payloads.LineShortage) []payloads.LineShortage {
	if in == nil {
		return []payloads.LineShortage{}
	}
	return in
}

func stockKeys(lines []LineInput) []catalog.StockKey {
	keys := make([]catalog.StockKey, 0, len(lines))
	for _, line := range lines {
		keys = append(keys, catalog.StockKey{ProductID: line.ProductID, WarehouseID: line.WarehouseID})
	}
	return keys
}

func lineInputProducts(lines []LineInput) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func lineProducts(lines []*models.SalesOrderLine) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

func trimmedNotes(notes *string) *string {
	if notes == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*notes)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func invalidTransition(from enums.SalesOrderStatus, to string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("sales order cannot move from %s to %s", from, to)).WithDetails(map[string]any{
		"from": from,
		"to":   to,
	})
}

func concurrencyErr(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConcurrency, "sales order changed concurrently").WithDetails(map[string]any{"order_id": orderID})
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "sales order not found")
	}
	return persistenceErr(err, msg)
}

func persistenceErr(err error, msg string) error {
	return db.WrapPersistence(err, msg)
}

// LineWriter adapts the repository to the reservation coordinator.
type LineWriter struct {
	repo Repository
}

func NewLineWriter(repo Repository) *LineWriter {
	return &LineWriter{repo: repo}
}

func (w *LineWriter) SetLineReservation(ctx context.Context, tx *gorm.DB, lineID uuid.UUID, reservedQty int) error {
	if err := w.repo.WithTx(tx).UpdateLineReservation(ctx, lineID, reservedQty); err != nil {
		return persistenceErr(err, "update line reservation")
	}
	return nil
}
