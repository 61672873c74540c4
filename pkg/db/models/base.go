package models

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the caller left the primary key unset.
// IDs are generated client side so the same models run against postgres and sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// StockKey identifies one inventory position.
type StockKey struct {
	TenantID   uuid.UUID
	LocationID uuid.UUID
	ProductID  uuid.UUID
	VariantID  uuid.UUID
}

// Valid reports whether every component of the key is set.
func (k StockKey) Valid() bool {
	return k.TenantID != uuid.Nil && k.LocationID != uuid.Nil && k.ProductID != uuid.Nil && k.VariantID != uuid.Nil
}

func (k StockKey) String() string {
	return k.TenantID.String() + "/" + k.LocationID.String() + "/" + k.ProductID.String() + "/" + k.VariantID.String()
}
