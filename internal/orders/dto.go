package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockcore/pkg/enums"
)

// LineInput is one requested order line. A nil VariantID resolves to the
// product's default variant. UnitPrice is optional; when absent the resolved
// sale price is used. TaxRate is a fraction (0.08 = 8%).
type LineInput struct {
	ProductID uuid.UUID        `json:"product_id" validate:"required"`
	VariantID uuid.UUID        `json:"variant_id"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	TaxRate   decimal.Decimal  `json:"tax_rate"`
}

// PaymentInput accompanies an order when the gateway already reported a payment.
type PaymentInput struct {
	GatewayReference string              `json:"gateway_reference" validate:"required"`
	Status           enums.PaymentStatus `json:"status" validate:"required"`
	Amount           decimal.Decimal     `json:"amount"`
}

type CreateOrderInput struct {
	UserID     *uuid.UUID      `json:"user_id,omitempty"`
	LocationID uuid.UUID       `json:"location_id" validate:"required"`
	OrderType  enums.OrderType `json:"order_type" validate:"required"`
	PriceType  enums.PriceType `json:"price_type,omitempty"`
	Lines      []LineInput     `json:"lines" validate:"min=1,dive"`
	Notes      *string         `json:"notes,omitempty"`
	CreatedBy  *uuid.UUID      `json:"created_by,omitempty"`
	Payment    *PaymentInput   `json:"payment,omitempty"`
}

type UpdateStatusInput struct {
	OrderID   uuid.UUID         `json:"order_id" validate:"required"`
	Status    enums.OrderStatus `json:"status" validate:"required"`
	UpdatedBy *uuid.UUID        `json:"updated_by,omitempty"`
}

type CancelInput struct {
	OrderID     uuid.UUID  `json:"order_id" validate:"required"`
	CancelledBy *uuid.UUID `json:"cancelled_by,omitempty"`
}

// PaymentUpdate is a gateway notification routed to an existing order.
type PaymentUpdate struct {
	OrderID          uuid.UUID           `json:"order_id" validate:"required"`
	GatewayReference string              `json:"gateway_reference" validate:"required"`
	Status           enums.PaymentStatus `json:"status" validate:"required"`
	Amount           decimal.Decimal     `json:"amount"`
}
