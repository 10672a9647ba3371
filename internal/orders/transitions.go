package orders

import "github.com/angelmondragon/stockflow-backend/pkg/enums"

var allowedTransitions = map[enums.SalesOrderStatus][]enums.SalesOrderStatus{
	enums.SalesOrderStatusDraft:           {enums.SalesOrderStatusPendingApproval, enums.SalesOrderStatusCancelled},
	enums.SalesOrderStatusPendingApproval: {enums.SalesOrderStatusApproved, enums.SalesOrderStatusCancelled},
	enums.SalesOrderStatusApproved:        {enums.SalesOrderStatusCompleted, enums.SalesOrderStatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the order lifecycle.
func CanTransition(from, to enums.SalesOrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// IsMutable reports whether lines, customer and notes may still change.
func IsMutable(status enums.SalesOrderStatus) bool {
	return status == enums.SalesOrderStatusDraft || status == enums.SalesOrderStatusPendingApproval
}

func AcceptsPayment(status enums.SalesOrderStatus) bool {
	return status == enums.SalesOrderStatusApproved || status == enums.SalesOrderStatusCompleted
}

func IsDeletable(status enums.SalesOrderStatus) bool {
	return status == enums.SalesOrderStatusDraft
}

// OpenStatuses are the states whose lines may hold reservations.
func OpenStatuses() []enums.SalesOrderStatus {
	return []enums.SalesOrderStatus{
		enums.SalesOrderStatusDraft,
		enums.SalesOrderStatusPendingApproval,
		enums.SalesOrderStatusApproved,
	}
}
