package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InventorySummary caches the ledger sum and outstanding reservations for one key.
type InventorySummary struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TenantID      uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_inventory_summaries_key,priority:1"`
	LocationID    uuid.UUID `gorm:"column:location_id;type:uuid;not null;uniqueIndex:ux_inventory_summaries_key,priority:2"`
	ProductID     uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_inventory_summaries_key,priority:3"`
	VariantID     uuid.UUID `gorm:"column:variant_id;type:uuid;not null;uniqueIndex:ux_inventory_summaries_key,priority:4"`
	StockCount    int       `gorm:"column:stock_count;not null"`
	ReservedStock int       `gorm:"column:reserved_stock;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *InventorySummary) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// Available is stock that is neither sold nor claimed by a pending order.
func (s InventorySummary) Available() int {
	return s.StockCount - s.ReservedStock
}

func (s InventorySummary) Key() StockKey {
	return StockKey{TenantID: s.TenantID, LocationID: s.LocationID, ProductID: s.ProductID, VariantID: s.VariantID}
}
