package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/repo"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
)

// Repository reads and writes price_entries for one tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TenantID() uuid.UUID
	// FindEffective returns the latest entry valid at now for the exact
	// (variant, outlet) scope; a nil pointer matches only NULL columns.
	FindEffective(ctx context.Context, productID uuid.UUID, variantID, outletID *uuid.UUID, priceType enums.PriceType, now time.Time) (*models.PriceEntry, error)
	// NextStart returns the earliest valid_from after now across every scope
	// of the product and price type, or nil when nothing is scheduled.
	NextStart(ctx context.Context, productID uuid.UUID, priceType enums.PriceType, now time.Time) (*time.Time, error)
	Create(ctx context.Context, entry *models.PriceEntry) error
}

type repository struct {
	repo.Base
}

// NewRepository returns a price repository scoped to tenantID.
func NewRepository(db *gorm.DB, tenantID uuid.UUID) Repository {
	return &repository{Base: repo.NewBase(db, tenantID)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindEffective(ctx context.Context, productID uuid.UUID, variantID, outletID *uuid.UUID, priceType enums.PriceType, now time.Time) (*models.PriceEntry, error) {
	q := r.Scoped(ctx).
		Where("product_id = ? AND price_type = ?", productID, priceType).
		Where("valid_from <= ?", now).
		Where("(valid_until IS NULL OR valid_until >= ?)", now)
	if variantID != nil {
		q = q.Where("variant_id = ?", *variantID)
	} else {
		q = q.Where("variant_id IS NULL")
	}
	if outletID != nil {
		q = q.Where("outlet_id = ?", *outletID)
	} else {
		q = q.Where("outlet_id IS NULL")
	}

	var entry models.PriceEntry
	if err := q.Order("valid_from DESC").Order("created_at DESC").First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) NextStart(ctx context.Context, productID uuid.UUID, priceType enums.PriceType, now time.Time) (*time.Time, error) {
	var entry models.PriceEntry
	err := r.Scoped(ctx).
		Where("product_id = ? AND price_type = ? AND valid_from > ?", productID, priceType, now).
		Order("valid_from ASC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry.ValidFrom, nil
}

func (r *repository) Create(ctx context.Context, entry *models.PriceEntry) error {
	entry.TenantID = r.TenantID()
	return r.DB(ctx).Create(entry).Error
}
