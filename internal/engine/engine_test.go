package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockcore/internal/ledger"
	"github.com/angelmondragon/stockcore/internal/orders"
	"github.com/angelmondragon/stockcore/internal/transfers"
	"github.com/angelmondragon/stockcore/pkg/config"
	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/db/dbtest"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
)

func TestNewRequiresDB(t *testing.T) {
	_, err := New(Params{})
	require.Error(t, err)
}

func TestForTenantWiresWorkingGraph(t *testing.T) {
	db := dbtest.Open(t, "engine")
	fx := dbtest.Seed(t, db, "5.00")
	e, err := New(Params{DB: pkgdb.NewFromGorm(db), Pricing: config.PricingConfig{Tolerance: 0.02}})
	require.NoError(t, err)

	_, err = e.ForTenant(uuid.Nil)
	require.Error(t, err)

	tenant, err := e.ForTenant(fx.TenantID)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = tenant.Ledger.Record(ctx, nil, ledger.RecordMovementInput{
		LocationID: fx.Warehouse, ProductID: fx.ProductID, VariantID: fx.VariantID,
		MovementType: enums.MovementTypeReceipt, Quantity: 8,
	})
	require.NoError(t, err)

	_, err = tenant.Transfers.Transfer(ctx, transfers.TransferInput{
		SourceLocationID: fx.Warehouse,
		DestLocationID:   fx.Outlet,
		Items:            []transfers.Item{{ProductID: fx.ProductID, Quantity: 5}},
	})
	require.NoError(t, err)

	order, err := tenant.Orders.Create(ctx, orders.CreateOrderInput{
		LocationID: fx.Outlet,
		OrderType:  enums.OrderTypeSales,
		Lines:      []orders.LineInput{{ProductID: fx.ProductID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, "10.00", order.TotalAmount.StringFixed(2))

	summary, err := tenant.Summary(ctx, fx.Key(fx.Outlet))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.StockCount)
	assert.Equal(t, 3, summary.Available())
}

func TestRunAppliesOperationTimeout(t *testing.T) {
	db := dbtest.Open(t, "engine")
	e, err := New(Params{DB: pkgdb.NewFromGorm(db), Orders: config.OrdersConfig{OperationTimeout: time.Second}})
	require.NoError(t, err)
	tenant, err := e.ForTenant(uuid.New())
	require.NoError(t, err)

	require.NoError(t, tenant.Run(context.Background(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
		return nil
	}))
}

func TestRebuildAllRepairsEveryTenant(t *testing.T) {
	db := dbtest.Open(t, "engine")
	first := dbtest.Seed(t, db, "1.00")
	second := dbtest.Seed(t, db, "1.00")
	e, err := New(Params{DB: pkgdb.NewFromGorm(db)})
	require.NoError(t, err)
	ctx := context.Background()

	for _, fx := range []dbtest.Fixture{first, second} {
		tenant, err := e.ForTenant(fx.TenantID)
		require.NoError(t, err)
		_, err = tenant.Ledger.Record(ctx, nil, ledger.RecordMovementInput{
			LocationID: fx.Outlet, ProductID: fx.ProductID, VariantID: fx.VariantID,
			MovementType: enums.MovementTypePurchase, Quantity: 4,
		})
		require.NoError(t, err)
	}
	require.NoError(t, db.Model(&models.InventorySummary{}).
		Where("tenant_id = ?", second.TenantID).
		Update("stock_count", 99).Error)

	tenants, err := e.Tenants(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{first.TenantID, second.TenantID}, tenants)

	reports, err := e.RebuildAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	drifted := 0
	for _, r := range reports {
		drifted += len(r.Drifted)
	}
	assert.Equal(t, 1, drifted)
	assert.Equal(t, 4, dbtest.Summary(t, db, second.Key(second.Outlet)).StockCount)
}
