package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/pkg/enums"
)

// Order is a sales, purchase, or return order against one location.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID         uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;index"`
	UserID           *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	LocationID       uuid.UUID           `gorm:"column:location_id;type:uuid;not null"`
	OrderType        enums.OrderType     `gorm:"column:order_type;type:varchar(16);not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:varchar(16);not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:varchar(16);not null"`
	InventoryUpdated bool                `gorm:"column:inventory_updated;not null"`
	SubtotalAmount   decimal.Decimal     `gorm:"column:subtotal_amount;type:numeric(12,2);not null"`
	TaxAmount        decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	PaymentReference *string             `gorm:"column:payment_reference"`
	Notes            *string             `gorm:"column:notes"`
	CreatedBy        *uuid.UUID          `gorm:"column:created_by;type:uuid"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`

	Lines []OrderLine `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

type OrderLine struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	TenantID   uuid.UUID       `gorm:"column:tenant_id;type:uuid;not null"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID  uuid.UUID       `gorm:"column:variant_id;type:uuid;not null"`
	LocationID uuid.UUID       `gorm:"column:location_id;type:uuid;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TaxAmount  decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	LineTotal  decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// Key returns the inventory position the line draws from.
func (l OrderLine) Key() StockKey {
	return StockKey{TenantID: l.TenantID, LocationID: l.LocationID, ProductID: l.ProductID, VariantID: l.VariantID}
}

// Payment records one gateway notification applied to an order.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TenantID         uuid.UUID           `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:ux_payments_tenant_gateway_reference,priority:1"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	GatewayReference string              `gorm:"column:gateway_reference;not null;uniqueIndex:ux_payments_tenant_gateway_reference,priority:2"`
	Status           enums.PaymentStatus `gorm:"column:status;type:varchar(16);not null"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
