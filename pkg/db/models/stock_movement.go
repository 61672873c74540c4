package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/pkg/enums"
)

// StockMovement is an immutable, signed entry in the stock ledger.
type StockMovement struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index:ix_stock_movements_key,priority:1"`
	ProductID     uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index:ix_stock_movements_key,priority:2"`
	LocationID    uuid.UUID           `gorm:"column:location_id;type:uuid;not null;index:ix_stock_movements_key,priority:3"`
	VariantID     uuid.UUID           `gorm:"column:variant_id;type:uuid;not null;index:ix_stock_movements_key,priority:4"`
	MovementType  enums.MovementType  `gorm:"column:movement_type;type:varchar(32);not null"`
	Quantity      int                 `gorm:"column:quantity;not null"`
	ReferenceType enums.ReferenceType `gorm:"column:reference_type;type:varchar(32)"`
	ReferenceID   *uuid.UUID          `gorm:"column:reference_id;type:uuid;index:ix_stock_movements_reference"`
	Notes         *string             `gorm:"column:notes"`
	CreatedBy     *uuid.UUID          `gorm:"column:created_by;type:uuid"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// Key returns the inventory position the movement applies to.
func (m StockMovement) Key() StockKey {
	return StockKey{TenantID: m.TenantID, LocationID: m.LocationID, ProductID: m.ProductID, VariantID: m.VariantID}
}
