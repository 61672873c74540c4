package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockcore/internal/repo"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/pagination"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository scoped to tenantID.
func NewRepository(db *gorm.DB, tenantID uuid.UUID) Repository {
	return &repository{Base: repo.NewBase(db, tenantID)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	order.TenantID = r.TenantID()
	return r.DB(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].TenantID = r.TenantID()
	}
	return r.DB(ctx).Create(&lines).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.Scoped(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC").Order("id ASC") }).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.Scoped(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.Scoped(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

func (r *repository) UpdateOrder(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return r.Scoped(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(updates).Error
}

func (r *repository) MarkInventoryCommitted(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	res := r.Scoped(ctx).
		Model(&models.Order{}).
		Where("id = ? AND inventory_updated = ?", orderID, false).
		Updates(map[string]any{"inventory_updated": true, "updated_at": now})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) List(ctx context.Context, filter OrderFilter, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	q := r.Scoped(ctx).Model(&models.Order{})
	if filter.LocationID != uuid.Nil {
		q = q.Where("location_id = ?", filter.LocationID)
	}
	if filter.OrderType != "" {
		q = q.Where("order_type = ?", filter.OrderType)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		q = q.Where("payment_status = ?", filter.PaymentStatus)
	}

	var rows []models.Order
	err := pagination.ApplyNewestFirst(q, cursor).Limit(limit).Find(&rows).Error
	return rows, err
}
