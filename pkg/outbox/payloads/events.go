package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/stockcore/pkg/enums"
)

// OrderLine is the per-line slice of an order carried on order events.
type OrderLine struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

// OrderCreatedEvent is emitted once an order and its reservations are persisted.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	LocationID  uuid.UUID       `json:"location_id"`
	OrderType   enums.OrderType `json:"order_type"`
	TotalAmount string          `json:"total_amount"`
	Lines       []OrderLine     `json:"lines"`
}

// OrderStatusChangedEvent records a lifecycle transition.
type OrderStatusChangedEvent struct {
	OrderID            uuid.UUID         `json:"order_id"`
	From               enums.OrderStatus `json:"from"`
	To                 enums.OrderStatus `json:"to"`
	InventoryCommitted bool              `json:"inventory_committed"`
}

// OrderCancelledEvent reports how stock was unwound for a cancelled order.
type OrderCancelledEvent struct {
	OrderID             uuid.UUID       `json:"order_id"`
	OrderType           enums.OrderType `json:"order_type"`
	ReservationReleased bool            `json:"reservation_released"`
	StockReversed       bool            `json:"stock_reversed"`
}

// TransferItem is one product moved between locations.
type TransferItem struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

// InventoryTransferredEvent is emitted after both legs of a transfer commit.
type InventoryTransferredEvent struct {
	ReferenceID      uuid.UUID      `json:"reference_id"`
	SourceLocationID uuid.UUID      `json:"source_location_id"`
	DestLocationID   uuid.UUID      `json:"dest_location_id"`
	Items            []TransferItem `json:"items"`
}

// InventoryAdjustedEvent is emitted when a physical count produced a correction.
type InventoryAdjustedEvent struct {
	MovementID       uuid.UUID          `json:"movement_id"`
	LocationID       uuid.UUID          `json:"location_id"`
	ProductID        uuid.UUID          `json:"product_id"`
	VariantID        uuid.UUID          `json:"variant_id"`
	MovementType     enums.MovementType `json:"movement_type"`
	Difference       int                `json:"difference"`
	PhysicalQuantity int                `json:"physical_quantity"`
	Reason           string             `json:"reason"`
}

// PaymentRecordedEvent is emitted the first time a gateway notification is applied.
type PaymentRecordedEvent struct {
	PaymentID        uuid.UUID           `json:"payment_id"`
	OrderID          uuid.UUID           `json:"order_id"`
	GatewayReference string              `json:"gateway_reference"`
	Status           enums.PaymentStatus `json:"status"`
	Amount           string              `json:"amount"`
}
