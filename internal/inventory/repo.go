package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockcore/internal/repo"
	"github.com/angelmondragon/stockcore/pkg/db/models"
)

// KeyTotal is the ledger sum for one (location, product, variant) within a tenant.
type KeyTotal struct {
	LocationID uuid.UUID
	ProductID  uuid.UUID
	VariantID  uuid.UUID
	Total      int
}

// Repository persists inventory_summaries rows for one tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TenantID() uuid.UUID
	SumMovements(ctx context.Context, key models.StockKey) (int, error)
	SumAllMovements(ctx context.Context) ([]KeyTotal, error)
	UpsertStockCount(ctx context.Context, key models.StockKey, count int, now time.Time) error
	InsertIfMissing(ctx context.Context, key models.StockKey, count int, now time.Time) error
	Find(ctx context.Context, key models.StockKey) (*models.InventorySummary, error)
	FindForUpdate(ctx context.Context, key models.StockKey) (*models.InventorySummary, error)
	ListAll(ctx context.Context) ([]models.InventorySummary, error)
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]models.InventorySummary, error)
}

var summaryKeyColumns = []clause.Column{
	{Name: "tenant_id"},
	{Name: "location_id"},
	{Name: "product_id"},
	{Name: "variant_id"},
}

type repository struct {
	repo.Base
}

// NewRepository returns a summary repository scoped to tenantID.
func NewRepository(db *gorm.DB, tenantID uuid.UUID) Repository {
	return &repository{Base: repo.NewBase(db, tenantID)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) byKey(ctx context.Context, key models.StockKey) *gorm.DB {
	return r.Scoped(ctx).Where("location_id = ? AND product_id = ? AND variant_id = ?", key.LocationID, key.ProductID, key.VariantID)
}

func (r *repository) SumMovements(ctx context.Context, key models.StockKey) (int, error) {
	var total int64
	err := r.byKey(ctx, key).
		Model(&models.StockMovement{}).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repository) SumAllMovements(ctx context.Context) ([]KeyTotal, error) {
	var rows []KeyTotal
	err := r.Scoped(ctx).
		Model(&models.StockMovement{}).
		Select("location_id, product_id, variant_id, SUM(quantity) AS total").
		Group("location_id, product_id, variant_id").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) newRow(key models.StockKey, count int, now time.Time) *models.InventorySummary {
	return &models.InventorySummary{
		TenantID:   r.TenantID(),
		LocationID: key.LocationID,
		ProductID:  key.ProductID,
		VariantID:  key.VariantID,
		StockCount: count,
		UpdatedAt:  now,
	}
}

// UpsertStockCount writes count as the key's stock, leaving reserved_stock untouched.
func (r *repository) UpsertStockCount(ctx context.Context, key models.StockKey, count int, now time.Time) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: summaryKeyColumns,
		DoUpdates: clause.Assignments(map[string]any{
			"stock_count": count,
			"updated_at":  now,
		}),
	}).Create(r.newRow(key, count, now)).Error
}

func (r *repository) InsertIfMissing(ctx context.Context, key models.StockKey, count int, now time.Time) error {
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   summaryKeyColumns,
		DoNothing: true,
	}).Create(r.newRow(key, count, now)).Error
}

func (r *repository) Find(ctx context.Context, key models.StockKey) (*models.InventorySummary, error) {
	var row models.InventorySummary
	if err := r.byKey(ctx, key).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindForUpdate(ctx context.Context, key models.StockKey) (*models.InventorySummary, error) {
	var row models.InventorySummary
	if err := r.byKey(ctx, key).Clauses(clause.Locking{Strength: "UPDATE"}).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) ListAll(ctx context.Context) ([]models.InventorySummary, error) {
	var rows []models.InventorySummary
	err := r.Scoped(ctx).Order("location_id, product_id, variant_id").Find(&rows).Error
	return rows, err
}

func (r *repository) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]models.InventorySummary, error) {
	var rows []models.InventorySummary
	err := r.Scoped(ctx).
		Where("location_id = ?", locationID).
		Order("product_id, variant_id").
		Find(&rows).Error
	return rows, err
}
