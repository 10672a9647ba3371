package enums

import "fmt"

// MovementType labels a change to on-hand stock.
type MovementType string

const (
	MovementTypeReceipt    MovementType = "receipt"
	MovementTypeStocktake  MovementType = "stocktake"
	MovementTypeWastage    MovementType = "wastage"
	MovementTypeCorrection MovementType = "correction"
	MovementTypeSaleCommit MovementType = "sale_commit"
)

// adjustment reasons exclude sale_commit, which only the ledger's commit path writes.
var validAdjustmentReasons = []MovementType{
	MovementTypeReceipt,
	MovementTypeStocktake,
	MovementTypeWastage,
	MovementTypeCorrection,
}

func (m MovementType) String() string {
	return string(m)
}

// IsAdjustmentReason reports whether the value may be supplied to a manual adjustment.
func (m MovementType) IsAdjustmentReason() bool {
	for _, candidate := range validAdjustmentReasons {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseAdjustmentReason converts raw input into an adjustment MovementType.
func ParseAdjustmentReason(value string) (MovementType, error) {
	for _, candidate := range validAdjustmentReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment reason %q", value)
}
