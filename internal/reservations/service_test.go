package reservations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/inventory"
	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/db/dbtest"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
)

type rejections struct{ n int }

func (r *rejections) ReservationRejected() { r.n++ }

func newManager(t *testing.T, db *gorm.DB, tenantID uuid.UUID, metrics rejectionRecorder) Manager {
	t.Helper()
	agg, err := inventory.NewAggregator(inventory.NewRepository(db, tenantID), pkgdb.NewFromGorm(db), nil, nil)
	require.NoError(t, err)
	mgr, err := NewManager(NewRepository(db, tenantID), agg, metrics, nil)
	require.NoError(t, err)
	return mgr
}

func stock(t *testing.T, db *gorm.DB, key models.StockKey, qty int) {
	t.Helper()
	require.NoError(t, db.Create(&models.StockMovement{
		TenantID: key.TenantID, LocationID: key.LocationID, ProductID: key.ProductID, VariantID: key.VariantID,
		MovementType: enums.MovementTypePurchase, Quantity: qty,
	}).Error)
}

func requireShortfall(t *testing.T, err error, available, requested int) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	shortfall, ok := typed.Shortfall()
	require.True(t, ok)
	assert.Equal(t, available, shortfall.Available)
	assert.Equal(t, requested, shortfall.Requested)
}

func TestReserveRejectsOversell(t *testing.T) {
	db := dbtest.Open(t, "reservations")
	fx := dbtest.Seed(t, db, "1.00")
	key := fx.Key(fx.Outlet)
	counter := &rejections{}
	mgr := newManager(t, db, fx.TenantID, counter)
	ctx := context.Background()

	stock(t, db, key, 5)

	requireShortfall(t, mgr.Reserve(ctx, nil, key, 6), 5, 6)
	assert.Equal(t, 0, dbtest.Summary(t, db, key).ReservedStock)

	require.NoError(t, mgr.Reserve(ctx, nil, key, 5))
	row := dbtest.Summary(t, db, key)
	assert.Equal(t, 5, row.StockCount)
	assert.Equal(t, 5, row.ReservedStock)

	requireShortfall(t, mgr.Reserve(ctx, nil, key, 1), 0, 1)
	assert.Equal(t, 2, counter.n)
	assert.Equal(t, 5, dbtest.SumMovements(t, db, key), "reservations never write movements")
}

func TestReleaseClampsAtZero(t *testing.T) {
	db := dbtest.Open(t, "reservations")
	fx := dbtest.Seed(t, db, "1.00")
	key := fx.Key(fx.Outlet)
	mgr := newManager(t, db, fx.TenantID, nil)
	ctx := context.Background()

	stock(t, db, key, 4)
	require.NoError(t, mgr.Reserve(ctx, nil, key, 3))
	require.NoError(t, mgr.Release(ctx, nil, key, 2))
	assert.Equal(t, 1, dbtest.Summary(t, db, key).ReservedStock)

	require.NoError(t, mgr.Release(ctx, nil, key, 10))
	assert.Equal(t, 0, dbtest.Summary(t, db, key).ReservedStock)
}

func TestReleaseMissingRowIsNoop(t *testing.T) {
	db := dbtest.Open(t, "reservations")
	fx := dbtest.Seed(t, db, "1.00")
	mgr := newManager(t, db, fx.TenantID, nil)

	require.NoError(t, mgr.Release(context.Background(), nil, fx.Key(fx.Warehouse), 3))
	var count int64
	require.NoError(t, db.Model(&models.InventorySummary{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReserveAllRollsBackWithTransaction(t *testing.T) {
	db := dbtest.Open(t, "reservations")
	fx := dbtest.Seed(t, db, "1.00")
	mgr := newManager(t, db, fx.TenantID, nil)
	ctx := context.Background()

	outlet, warehouse := fx.Key(fx.Outlet), fx.Key(fx.Warehouse)
	stock(t, db, outlet, 5)
	stock(t, db, warehouse, 1)

	err := pkgdb.NewFromGorm(db).WithTx(ctx, func(tx *gorm.DB) error {
		return mgr.ReserveAll(ctx, tx, []Claim{
			{Key: outlet, Quantity: 3},
			{Key: warehouse, Quantity: 2},
		})
	})
	requireShortfall(t, err, 1, 2)

	var reserved int64
	require.NoError(t, db.Model(&models.InventorySummary{}).Select("COALESCE(SUM(reserved_stock), 0)").Scan(&reserved).Error)
	assert.Zero(t, reserved)
}

func TestClaimValidation(t *testing.T) {
	db := dbtest.Open(t, "reservations")
	fx := dbtest.Seed(t, db, "1.00")
	mgr := newManager(t, db, fx.TenantID, nil)
	ctx := context.Background()

	err := mgr.Reserve(ctx, nil, fx.Key(fx.Outlet), 0)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	foreign := fx.Key(fx.Outlet)
	foreign.TenantID = uuid.New()
	err = mgr.Reserve(ctx, nil, foreign, 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
