package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/ledger"
	"github.com/angelmondragon/stockcore/internal/payments"
	"github.com/angelmondragon/stockcore/internal/reservations"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/pagination"
)

// Repository persists orders and their lines for one tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TenantID() uuid.UUID
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateLines(ctx context.Context, lines []models.OrderLine) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error
	// MarkInventoryCommitted flips inventory_updated from false to true and
	// reports whether this call did the flip.
	MarkInventoryCommitted(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error)
	List(ctx context.Context, filter OrderFilter, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type reservationManager interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, claims []reservations.Claim) error
	ReleaseAll(ctx context.Context, tx *gorm.DB, claims []reservations.Claim) error
}

type movementRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, input ledger.RecordMovementInput) (*models.StockMovement, error)
}

type paymentCollaborator interface {
	Apply(ctx context.Context, tx *gorm.DB, n payments.Notification) (*models.Payment, bool, error)
}

// OrderFilter narrows List. Zero values are ignored.
type OrderFilter struct {
	LocationID    uuid.UUID
	OrderType     enums.OrderType
	Status        enums.OrderStatus
	PaymentStatus enums.PaymentStatus
}
