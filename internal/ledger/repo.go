package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/repo"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	"github.com/angelmondragon/stockcore/pkg/pagination"
)

// MovementFilter narrows a history listing. Zero values are ignored.
type MovementFilter struct {
	LocationID    uuid.UUID
	ProductID     uuid.UUID
	VariantID     uuid.UUID
	MovementType  enums.MovementType
	ReferenceType enums.ReferenceType
}

// Repository appends and reads stock movements for one tenant. There is no
// update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TenantID() uuid.UUID
	Create(ctx context.Context, movement *models.StockMovement) error
	Sum(ctx context.Context, key models.StockKey) (int, error)
	List(ctx context.Context, filter MovementFilter, cursor *pagination.Cursor, limit int) ([]models.StockMovement, error)
	ListByReference(ctx context.Context, referenceType enums.ReferenceType, referenceID uuid.UUID) ([]models.StockMovement, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository scoped to tenantID.
func NewRepository(db *gorm.DB, tenantID uuid.UUID) Repository {
	return &repository{Base: repo.NewBase(db, tenantID)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, movement *models.StockMovement) error {
	movement.TenantID = r.TenantID()
	return r.DB(ctx).Create(movement).Error
}

func (r *repository) Sum(ctx context.Context, key models.StockKey) (int, error) {
	var total int64
	err := r.Scoped(ctx).
		Model(&models.StockMovement{}).
		Where("location_id = ? AND product_id = ? AND variant_id = ?", key.LocationID, key.ProductID, key.VariantID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repository) List(ctx context.Context, filter MovementFilter, cursor *pagination.Cursor, limit int) ([]models.StockMovement, error) {
	q := r.Scoped(ctx).Model(&models.StockMovement{})
	if filter.LocationID != uuid.Nil {
		q = q.Where("location_id = ?", filter.LocationID)
	}
	if filter.ProductID != uuid.Nil {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if filter.VariantID != uuid.Nil {
		q = q.Where("variant_id = ?", filter.VariantID)
	}
	if filter.MovementType != "" {
		q = q.Where("movement_type = ?", filter.MovementType)
	}
	if filter.ReferenceType != "" {
		q = q.Where("reference_type = ?", filter.ReferenceType)
	}

	var rows []models.StockMovement
	err := pagination.ApplyNewestFirst(q, cursor).Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *repository) ListByReference(ctx context.Context, referenceType enums.ReferenceType, referenceID uuid.UUID) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	err := r.Scoped(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}
