package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSalesOrder OutboxAggregateType = "sales_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSalesOrder,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventSalesOrderCreated         OutboxEventType = "sales_order_created"
	EventSalesOrderUpdated         OutboxEventType = "sales_order_updated"
	EventSalesOrderSubmitted       OutboxEventType = "sales_order_submitted"
	EventSalesOrderApproved        OutboxEventType = "sales_order_approved"
	EventSalesOrderCompleted       OutboxEventType = "sales_order_completed"
	EventSalesOrderCancelled       OutboxEventType = "sales_order_cancelled"
	EventSalesOrderPaymentRecorded OutboxEventType = "sales_order_payment_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventSalesOrderCreated,
	EventSalesOrderUpdated,
	EventSalesOrderSubmitted,
	EventSalesOrderApproved,
	EventSalesOrderCompleted,
	EventSalesOrderCancelled,
	EventSalesOrderPaymentRecorded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why an outbox row stopped being retried.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
