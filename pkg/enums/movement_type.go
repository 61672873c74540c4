package enums

import (
	"fmt"
	"strings"
)

// MovementType classifies every stock ledger entry.
type MovementType string

const (
	MovementTypeSale          MovementType = "SALE"
	MovementTypeReturn        MovementType = "RETURN"
	MovementTypePurchase      MovementType = "PURCHASE"
	MovementTypeAdjustmentIn  MovementType = "ADJUSTMENT_IN"
	MovementTypeAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	MovementTypeTransferIn    MovementType = "TRANSFER_IN"
	MovementTypeTransferOut   MovementType = "TRANSFER_OUT"
	MovementTypeReceipt       MovementType = "RECEIPT"
)

var validMovementTypes = []MovementType{
	MovementTypeSale,
	MovementTypeReturn,
	MovementTypePurchase,
	MovementTypeAdjustmentIn,
	MovementTypeAdjustmentOut,
	MovementTypeTransferIn,
	MovementTypeTransferOut,
	MovementTypeReceipt,
}

// String implements fmt.Stringer.
func (m MovementType) String() string {
	return string(m)
}

// IsValid reports whether the value matches a known movement type.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// Sign returns +1 for movements that add stock and -1 for those that remove it.
func (m MovementType) Sign() int {
	switch m {
	case MovementTypeSale, MovementTypeAdjustmentOut, MovementTypeTransferOut:
		return -1
	case MovementTypeReturn, MovementTypePurchase, MovementTypeAdjustmentIn, MovementTypeTransferIn, MovementTypeReceipt:
		return 1
	default:
		return 0
	}
}

// AcceptsQuantity reports whether qty carries the sign this movement type requires.
func (m MovementType) AcceptsQuantity(qty int) bool {
	if qty == 0 {
		return false
	}
	sign := m.Sign()
	return (sign > 0 && qty > 0) || (sign < 0 && qty < 0)
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validMovementTypes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
