package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/repo"
	"github.com/angelmondragon/stockcore/pkg/db/models"
)

// Repository applies reservation deltas to inventory_summaries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TenantID() uuid.UUID
	// IncrementIfAvailable adds qty to reserved_stock only when at least qty is
	// available, returning whether a row was updated.
	IncrementIfAvailable(ctx context.Context, key models.StockKey, qty int, now time.Time) (bool, error)
	// Decrement subtracts qty from reserved_stock, clamping at zero.
	Decrement(ctx context.Context, key models.StockKey, qty int, now time.Time) error
}

type repository struct {
	repo.Base
}

// NewRepository returns a reservation repository scoped to tenantID.
func NewRepository(db *gorm.DB, tenantID uuid.UUID) Repository {
	return &repository{Base: repo.NewBase(db, tenantID)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) byKey(ctx context.Context, key models.StockKey) *gorm.DB {
	return r.Scoped(ctx).
		Model(&models.InventorySummary{}).
		Where("location_id = ? AND product_id = ? AND variant_id = ?", key.LocationID, key.ProductID, key.VariantID)
}

func (r *repository) IncrementIfAvailable(ctx context.Context, key models.StockKey, qty int, now time.Time) (bool, error) {
	res := r.byKey(ctx, key).
		Where("stock_count - reserved_stock >= ?", qty).
		Updates(map[string]any{
			"reserved_stock": gorm.Expr("reserved_stock + ?", qty),
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Decrement(ctx context.Context, key models.StockKey, qty int, now time.Time) error {
	return r.byKey(ctx, key).
		Updates(map[string]any{
			"reserved_stock": gorm.Expr("CASE WHEN reserved_stock > ? THEN reserved_stock - ? ELSE 0 END", qty, qty),
			"updated_at":     now,
		}).Error
}
