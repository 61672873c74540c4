// Package inventory maintains the per-key summary rows derived from the stock
// ledger. stock_count is always rewritten from the ledger sum, never by delta.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/tracing"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type driftRecorder interface {
	DriftDetected(n int)
}

// Aggregator derives and serves inventory summaries.
type Aggregator interface {
	// Recompute resums the ledger for key and upserts stock_count inside tx.
	Recompute(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error)
	// Ensure inserts a summary seeded from the ledger when none exists.
	Ensure(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error)
	// Lock ensures the row and re-reads it FOR UPDATE.
	Lock(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error)
	Get(ctx context.Context, key models.StockKey) (*models.InventorySummary, error)
	ListByLocation(ctx context.Context, locationID uuid.UUID) ([]models.InventorySummary, error)
	Rebuild(ctx context.Context) (*RebuildReport, error)
}

// DriftedKey is a summary whose cached stock disagreed with the ledger.
type DriftedKey struct {
	Key     models.StockKey `json:"key"`
	Cached  int             `json:"cached"`
	Ledger  int             `json:"ledger"`
	Missing bool            `json:"missing"`
}

// RebuildReport summarises one tenant-wide rebuild.
type RebuildReport struct {
	TenantID uuid.UUID    `json:"tenant_id"`
	Checked  int          `json:"checked"`
	Drifted  []DriftedKey `json:"drifted"`
}

type aggregator struct {
	repo    Repository
	tx      txRunner
	metrics driftRecorder
	logg    *logger.Logger
	now     func() time.Time
}

// NewAggregator wires the summary service. metrics and logg may be nil.
func NewAggregator(repo Repository, tx txRunner, metrics driftRecorder, logg *logger.Logger) (Aggregator, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &aggregator{
		repo:    repo,
		tx:      tx,
		metrics: metrics,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *aggregator) checkKey(key models.StockKey) error {
	if !key.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "tenant, location, product and variant ids are required")
	}
	if key.TenantID != a.repo.TenantID() {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory key not found for tenant")
	}
	return nil
}

func (a *aggregator) Recompute(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error) {
	if err := a.checkKey(key); err != nil {
		return nil, err
	}
	repo := a.repo.WithTx(tx)
	total, err := repo.SumMovements(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum stock movements")
	}
	if err := repo.UpsertStockCount(ctx, key, total, a.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "upsert inventory summary")
	}
	row, err := repo.Find(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload inventory summary")
	}
	return row, nil
}

func (a *aggregator) Ensure(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error) {
	if err := a.checkKey(key); err != nil {
		return nil, err
	}
	repo := a.repo.WithTx(tx)
	row, err := repo.Find(ctx, key)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory summary")
	}

	total, err := repo.SumMovements(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum stock movements")
	}
	if err := repo.InsertIfMissing(ctx, key, total, a.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seed inventory summary")
	}
	row, err = repo.Find(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload inventory summary")
	}
	return row, nil
}

func (a *aggregator) Lock(ctx context.Context, tx *gorm.DB, key models.StockKey) (*models.InventorySummary, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required to lock inventory")
	}
	if _, err := a.Ensure(ctx, tx, key); err != nil {
		return nil, err
	}
	row, err := a.repo.WithTx(tx).FindForUpdate(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock inventory summary")
	}
	return row, nil
}

// Get returns the stored summary, or an unsaved one built from the ledger sum
// when the key has never been summarised.
func (a *aggregator) Get(ctx context.Context, key models.StockKey) (*models.InventorySummary, error) {
	if err := a.checkKey(key); err != nil {
		return nil, err
	}
	row, err := a.repo.Find(ctx, key)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load inventory summary")
	}
	total, err := a.repo.SumMovements(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum stock movements")
	}
	return &models.InventorySummary{
		TenantID:   key.TenantID,
		LocationID: key.LocationID,
		ProductID:  key.ProductID,
		VariantID:  key.VariantID,
		StockCount: total,
	}, nil
}

func (a *aggregator) ListByLocation(ctx context.Context, locationID uuid.UUID) ([]models.InventorySummary, error) {
	if locationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location id is required")
	}
	rows, err := a.repo.ListByLocation(ctx, locationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory summaries")
	}
	return rows, nil
}

type positionKey struct {
	location, product, variant uuid.UUID
}

// Rebuild recomputes every summary of the tenant from the ledger and reports
// the keys whose cached stock had drifted.
func (a *aggregator) Rebuild(ctx context.Context) (report *RebuildReport, err error) {
	tenantID := a.repo.TenantID()
	ctx, span := tracing.Start(ctx, "inventory.rebuild", tracing.AttrTenantID.String(tenantID.String()))
	defer func() { tracing.End(span, err) }()

	report = &RebuildReport{TenantID: tenantID}
	err = a.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := a.repo.WithTx(tx)
		totals, err := repo.SumAllMovements(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sum stock movements")
		}
		summaries, err := repo.ListAll(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list inventory summaries")
		}

		cached := make(map[positionKey]models.InventorySummary, len(summaries))
		for _, row := range summaries {
			cached[positionKey{row.LocationID, row.ProductID, row.VariantID}] = row
		}

		now := a.now()
		repair := func(pk positionKey, ledgerTotal int) error {
			report.Checked++
			row, ok := cached[pk]
			delete(cached, pk)
			if ok && row.StockCount == ledgerTotal {
				return nil
			}
			key := models.StockKey{TenantID: tenantID, LocationID: pk.location, ProductID: pk.product, VariantID: pk.variant}
			report.Drifted = append(report.Drifted, DriftedKey{Key: key, Cached: row.StockCount, Ledger: ledgerTotal, Missing: !ok})
			if err := repo.UpsertStockCount(ctx, key, ledgerTotal, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "repair inventory summary")
			}
			return nil
		}

		for _, total := range totals {
			if err := repair(positionKey{total.LocationID, total.ProductID, total.VariantID}, total.Total); err != nil {
				return err
			}
		}
		// Summaries left over have no movements at all; their stock must be zero.
		for pk := range cached {
			if err := repair(pk, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if a.metrics != nil {
		a.metrics.DriftDetected(len(report.Drifted))
	}
	logCtx := a.logg.WithFields(ctx, map[string]any{
		"tenant_id": tenantID.String(),
		"checked":   report.Checked,
		"drifted":   len(report.Drifted),
	})
	if len(report.Drifted) > 0 {
		a.logg.Warn(logCtx, "inventory summaries drifted from ledger and were repaired")
	} else {
		a.logg.Debug(logCtx, "inventory summaries match ledger")
	}
	return report, nil
}
