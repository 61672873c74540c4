// Package reservations claims and returns available stock on inventory
// summaries. Reservations never touch the ledger.
package reservations

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/tracing"
)

// Ensurer creates the summary row for a key when it is missing.
type Ensurer interface {
	Ensure(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error)
}

type rejectionRecorder interface {
	ReservationRejected()
}

// Claim is one reservation request.
type Claim struct {
	Key      models.StockKey
	Quantity int
}

// Manager reserves and releases stock.
type Manager interface {
	Reserve(ctx context.Context, tx *gorm.DB, key models.StockKey, qty int) error
	Release(ctx context.Context, tx *gorm.DB, key models.StockKey, qty int) error
	// ReserveAll reserves every claim or returns the first failure. Earlier
	// claims are undone only by rolling back tx.
	ReserveAll(ctx context.Context, tx *gorm.DB, claims []Claim) error
	ReleaseAll(ctx context.Context, tx *gorm.DB, claims []Claim) error
}

type manager struct {
	repo    Repository
	ensure  Ensurer
	metrics rejectionRecorder
	logg    *logger.Logger
}

// NewManager wires the reservation manager. metrics and logg may be nil.
func NewManager(repo Repository, ensure Ensurer, metrics rejectionRecorder, logg *logger.Logger) (Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if ensure == nil {
		return nil, fmt.Errorf("inventory ensurer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &manager{repo: repo, ensure: ensure, metrics: metrics, logg: logg}, nil
}

func (m *manager) checkClaim(key models.StockKey, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !key.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant, location, product and variant ids are required")
	}
	if key.TenantID != m.repo.TenantID() {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory key not found for tenant")
	}
	return nil
}

func (m *manager) Reserve(ctx context.Context, tx *gorm.DB, key models.StockKey, qty int) (err error) {
	ctx, span := tracing.Start(ctx, "reservations.reserve",
		tracing.AttrLocationID.String(key.LocationID.String()),
		tracing.AttrProductID.String(key.ProductID.String()),
		tracing.AttrQuantity.Int(qty),
	)
	defer func() { tracing.End(span, err) }()

	if err := m.checkClaim(key, qty); err != nil {
		return err
	}
	if _, err := m.ensure.Ensure(ctx, tx, key); err != nil {
		return err
	}

	repo := m.repo.WithTx(tx)
	ok, err := repo.IncrementIfAvailable(ctx, key, qty, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve stock")
	}
	if ok {
		return nil
	}

	// The conditional update refused the claim; re-read only to report the shortfall.
	row, err := m.ensure.Ensure(ctx, tx, key)
	if err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.ReservationRejected()
	}
	m.logg.Warn(m.logg.WithFields(ctx, map[string]any{
		"stock_key": key.String(),
		"available": row.Available(),
		"requested": qty,
	}), "reservation rejected")
	return pkgerrors.InsufficientStock(row.Available(), qty)
}

func (m *manager) Release(ctx context.Context, tx *gorm.DB, key models.StockKey, qty int) error {
	if err := m.checkClaim(key, qty); err != nil {
		return err
	}
	if err := m.repo.WithTx(tx).Decrement(ctx, key, qty, time.Now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release reservation")
	}
	return nil
}

func (m *manager) ReserveAll(ctx context.Context, tx *gorm.DB, claims []Claim) error {
	for _, claim := range claims {
		if err := m.Reserve(ctx, tx, claim.Key, claim.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (m *manager) ReleaseAll(ctx context.Context, tx *gorm.DB, claims []Claim) error {
	for _, claim := range claims {
		if err := m.Release(ctx, tx, claim.Key, claim.Quantity); err != nil {
			return err
		}
	}
	return nil
}
