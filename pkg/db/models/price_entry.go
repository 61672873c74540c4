package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/pkg/enums"
)

// PriceEntry is a time-bounded price for a product, optionally narrowed to a
// variant and/or outlet.
type PriceEntry struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	TenantID   uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null;index:ix_price_entries_lookup,priority:1"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index:ix_price_entries_lookup,priority:2"`
	VariantID  *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	OutletID   *uuid.UUID      `gorm:"column:outlet_id;type:uuid"`
	PriceType  enums.PriceType `gorm:"column:price_type;type:varchar(32);not null"`
	MRPPrice   decimal.Decimal `gorm:"column:mrp_price;type:numeric(12,2);not null"`
	SalePrice  decimal.Decimal `gorm:"column:sale_price;type:numeric(12,2);not null"`
	ValidFrom  time.Time       `gorm:"column:valid_from;not null"`
	ValidUntil *time.Time      `gorm:"column:valid_until"`
	CreatedBy  *uuid.UUID      `gorm:"column:created_by;type:uuid"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (p *PriceEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
