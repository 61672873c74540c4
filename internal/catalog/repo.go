package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/repo"
	"github.com/angelmondragon/stockcore/pkg/db/models"
)

// Repository reads catalog rows for one tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error)
	FindDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error)
	CreateVariant(ctx context.Context, variant *models.ProductVariant) error
	FindLocation(ctx context.Context, locationID uuid.UUID) (*models.Location, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a catalog repository scoped to tenantID.
func NewRepository(db *gorm.DB, tenantID uuid.UUID) Repository {
	return &repository{Base: repo.NewBase(db, tenantID)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.Scoped(ctx).Where("id = ?", productID).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindVariant(ctx context.Context, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	if err := r.Scoped(ctx).Where("id = ?", variantID).First(&variant).Error; err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) FindDefaultVariant(ctx context.Context, productID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.Scoped(ctx).
		Where("product_id = ? AND is_default = ?", productID, true).
		Order("created_at ASC").
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

func (r *repository) CreateVariant(ctx context.Context, variant *models.ProductVariant) error {
	variant.TenantID = r.TenantID()
	return r.DB(ctx).Create(variant).Error
}

func (r *repository) FindLocation(ctx context.Context, locationID uuid.UUID) (*models.Location, error) {
	var location models.Location
	if err := r.Scoped(ctx).Where("id = ?", locationID).First(&location).Error; err != nil {
		return nil, err
	}
	return &location, nil
}
