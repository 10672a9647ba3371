package enums

import "fmt"

// SalesOrderStatus tracks where a sales order sits in its approval/fulfillment lifecycle.
type SalesOrderStatus string

const (
	SalesOrderStatusDraft           SalesOrderStatus = "draft"
	SalesOrderStatusPendingApproval SalesOrderStatus = "pending_approval"
	SalesOrderStatusApproved        SalesOrderStatus = "approved"
	SalesOrderStatusCompleted       SalesOrderStatus = "completed"
	SalesOrderStatusCancelled       SalesOrderStatus = "cancelled"
)

var validSalesOrderStatuses = []SalesOrderStatus{
	SalesOrderStatusDraft,
	SalesOrderStatusPendingApproval,
	SalesOrderStatusApproved,
	SalesOrderStatusCompleted,
	SalesOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s SalesOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SalesOrderStatus.
func (s SalesOrderStatus) IsValid() bool {
	for _, candidate := range validSalesOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s SalesOrderStatus) IsTerminal() bool {
	return s == SalesOrderStatusCompleted || s == SalesOrderStatusCancelled
}

// ParseSalesOrderStatus converts raw input into a SalesOrderStatus.
func ParseSalesOrderStatus(value string) (SalesOrderStatus, error) {
	for _, candidate := range validSalesOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sales order status %q", value)
}
