package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/stockcore/internal/repo"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
)

// Repository persists payments for one tenant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TenantID() uuid.UUID
	FindByReference(ctx context.Context, gatewayReference string) (*models.Payment, error)
	// InsertIfAbsent reports false when (tenant, gateway_reference) already exists.
	InsertIfAbsent(ctx context.Context, payment *models.Payment) (bool, error)
	// AdvanceStatus moves a payment from one status to another and reports
	// false when the row no longer holds from.
	AdvanceStatus(ctx context.Context, paymentID uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	OrderExists(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB, tenantID uuid.UUID) Repository {
	return &repository{Base: repo.NewBase(db, tenantID)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindByReference(ctx context.Context, gatewayReference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.Scoped(ctx).Where("gateway_reference = ?", gatewayReference).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) InsertIfAbsent(ctx context.Context, payment *models.Payment) (bool, error) {
	payment.TenantID = r.TenantID()
	res := r.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "gateway_reference"}},
		DoNothing: true,
	}).Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AdvanceStatus(ctx context.Context, paymentID uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	res := r.Scoped(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected > 0, res.Error
}

func (r *repository) OrderExists(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.Scoped(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.Scoped(ctx).Where("order_id = ?", orderID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}
