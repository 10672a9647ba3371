package enums

import "fmt"

// ProductType classifies catalog items.
type ProductType string

const (
	ProductTypeRawMaterial     ProductType = "raw_material"
	ProductTypePackaging       ProductType = "packaging"
	ProductTypeFinishedProduct ProductType = "finished_product"
	ProductTypeGoods           ProductType = "goods"
)

var validProductTypes = []ProductType{
	ProductTypeRawMaterial,
	ProductTypePackaging,
	ProductTypeFinishedProduct,
	ProductTypeGoods,
}

func (t ProductType) String() string {
	return string(t)
}

func (t ProductType) IsValid() bool {
	for _, candidate := range validProductTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseProductType(value string) (ProductType, error) {
	for _, candidate := range validProductTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product type %q", value)
}

// WarehouseType distinguishes storage locations.
type WarehouseType string

const (
	WarehouseTypeMain    WarehouseType = "main"
	WarehouseTypeTransit WarehouseType = "transit"
	WarehouseTypeRetail  WarehouseType = "retail"
)

var validWarehouseTypes = []WarehouseType{
	WarehouseTypeMain,
	WarehouseTypeTransit,
	WarehouseTypeRetail,
}

func (t WarehouseType) String() string {
	return string(t)
}

func (t WarehouseType) IsValid() bool {
	for _, candidate := range validWarehouseTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// RecordStatus is the active/inactive flag shared by products, warehouses and customers.
type RecordStatus string

const (
	RecordStatusActive   RecordStatus = "active"
	RecordStatusInactive RecordStatus = "inactive"
)

func (s RecordStatus) String() string {
	return string(s)
}

func (s RecordStatus) IsValid() bool {
	return s == RecordStatusActive || s == RecordStatusInactive
}

// IsActive reports whether the record may be referenced by new orders.
func (s RecordStatus) IsActive() bool {
	return s == RecordStatusActive
}
