package enums

// Permission is a key granted to an actor by the identity provider.
type Permission string

const (
	PermissionCreateSalesOrders   Permission = "create_sales_orders"
	PermissionViewSalesOrders     Permission = "view_sales_orders"
	PermissionUpdateSalesOrders   Permission = "update_sales_orders"
	PermissionDeleteSalesOrders   Permission = "delete_sales_orders"
	PermissionSubmitSalesOrder    Permission = "submit_sales_order"
	PermissionApproveSalesOrder   Permission = "approve_sales_order"
	PermissionCompleteSalesOrder  Permission = "complete_sales_order"
	PermissionCancelSalesOrder    Permission = "cancel_sales_order"
	PermissionRecordSalesPayments Permission = "record_sales_payments"
	PermissionViewInventory       Permission = "view_inventory"
	PermissionManageInventory     Permission = "manage_inventory"
	PermissionViewReports         Permission = "view_reports"
)

func (p Permission) String() string {
	return string(p)
}

var validPermissions = []Permission{
	PermissionCreateSalesOrders,
	PermissionViewSalesOrders,
	PermissionUpdateSalesOrders,
	PermissionDeleteSalesOrders,
	PermissionSubmitSalesOrder,
	PermissionApproveSalesOrder,
	PermissionCompleteSalesOrder,
	PermissionCancelSalesOrder,
	PermissionRecordSalesPayments,
	PermissionViewInventory,
	PermissionManageInventory,
	PermissionViewReports,
}

func (p Permission) IsValid() bool {
	for _, candidate := range validPermissions {
		if candidate == p {
			return true
		}
	}
	return false
}

// AllPermissions returns every permission key, mostly for local tokens and tests.
func AllPermissions() []Permission {
	return append([]Permission(nil), validPermissions...)
}
