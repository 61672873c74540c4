package enums

import "fmt"

// PriceType selects a price list. Lookups default to PriceTypeStandard.
type PriceType string

const (
	PriceTypeStandard  PriceType = "standard"
	PriceTypeWholesale PriceType = "wholesale"
	PriceTypeMember    PriceType = "member"
	PriceTypePromo     PriceType = "promo"
)

var validPriceTypes = []PriceType{
	PriceTypeStandard,
	PriceTypeWholesale,
	PriceTypeMember,
	PriceTypePromo,
}

func (p PriceType) IsValid() bool {
	for _, candidate := range validPriceTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// OrDefault returns the standard price type when p is empty.
func (p PriceType) OrDefault() PriceType {
	if p == "" {
		return PriceTypeStandard
	}
	return p
}

func ParsePriceType(value string) (PriceType, error) {
	if value == "" {
		return PriceTypeStandard, nil
	}
	for _, candidate := range validPriceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid price type %q", value)
}

// LocationKind separates customer-facing outlets from warehouses.
type LocationKind string

const (
	LocationKindOutlet    LocationKind = "outlet"
	LocationKindWarehouse LocationKind = "warehouse"
)

func (k LocationKind) IsValid() bool {
	return k == LocationKindOutlet || k == LocationKindWarehouse
}

// ReferenceType names what produced a stock movement.
type ReferenceType string

const (
	ReferenceTypeOrder      ReferenceType = "order"
	ReferenceTypeTransfer   ReferenceType = "transfer"
	ReferenceTypeAdjustment ReferenceType = "adjustment"
	ReferenceTypeManual     ReferenceType = "manual"
)
