package ledger

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
	"github.com/angelmondragon/stockcore/pkg/pagination"
)

type countingMetrics struct{ byType map[string]int }

func (c *countingMetrics) MovementRecorded(movementType string) {
	if c.byType == nil {
		c.byType = map[string]int{}
	}
	c.byType[movementType]++
}

func newLedger(t *testing.T, db *gorm.DB, tenantID uuid.UUID, metrics movementRecorder) Service {
	t.Helper()
	runner := pkgdb.NewFromGorm(db)
	agg, err := inventory.NewAggregator(inventory.NewRepository(db, tenantID), runner, nil, nil)
	require.NoError(t, err)
	svc, err := NewService(NewRepository(db, tenantID), runner, agg, metrics, nil)
	require.NoError(t, err)
	return svc
}

func movementInput(fx dbtest.Fixture, location uuid.UUID, mt enums.MovementType, qty int) RecordMovementInput {
	return RecordMovementInput{
		LocationID:   location,
		ProductID:    fx.ProductID,
		VariantID:    fx.VariantID,
		MovementType: mt,
		Quantity:     qty,
	}
}

func TestRecordKeepsSummaryEqualToLedgerSum(t *testing.T) {
	db := dbtest.Open(t, "ledger")
	fx := dbtest.Seed(t, db, "1.00")
	metrics := &countingMetrics{}
	svc := newLedger(t, db, fx.TenantID, metrics)
	ctx := context.Background()
	key := fx.Key(fx.Outlet)

	steps := []struct {
		mt  enums.MovementType
		qty int
	}{
		{enums.MovementTypePurchase, 20},
		{enums.MovementTypeSale, -3},
		{enums.MovementTypeReturn, 1},
		{enums.MovementTypeAdjustmentOut, -2},
		{enums.MovementTypeReceipt, 4},
	}
	for _, step := range steps {
		_, err := svc.Record(ctx, nil, movementInput(fx, fx.Outlet, step.mt, step.qty))
		require.NoError(t, err)

		sum := dbtest.SumMovements(t, db, key)
		assert.Equal(t, sum, dbtest.Summary(t, db, key).StockCount)
	}

	stock, err := svc.CurrentStock(ctx, nil, key)
	require.NoError(t, err)
	assert.Equal(t, 20, stock)
	assert.Equal(t, 1, metrics.byType["SALE"])
	assert.Equal(t, 1, metrics.byType["PURCHASE"])
}

func TestRecordRejectsInvalidMovements(t *testing.T) {
	db := dbtest.Open(t, "ledger")
	fx := dbtest.Seed(t, db, "1.00")
	svc := newLedger(t, db, fx.TenantID, nil)
	ctx := context.Background()

	noVariant := movementInput(fx, fx.Outlet, enums.MovementTypePurchase, 1)
	noVariant.VariantID = uuid.Nil
	danglingRef := movementInput(fx, fx.Outlet, enums.MovementTypePurchase, 1)
	danglingRef.ReferenceType = enums.ReferenceTypeOrder

	tests := []struct {
		name  string
		input RecordMovementInput
	}{
		{"zero quantity", movementInput(fx, fx.Outlet, enums.MovementTypePurchase, 0)},
		{"positive sale", movementInput(fx, fx.Outlet, enums.MovementTypeSale, 2)},
		{"negative purchase", movementInput(fx, fx.Outlet, enums.MovementTypePurchase, -2)},
		{"negative transfer in", movementInput(fx, fx.Outlet, enums.MovementTypeTransferIn, -1)},
		{"unknown type", movementInput(fx, fx.Outlet, enums.MovementType("GIFT"), 1)},
		{"missing variant", noVariant},
		{"reference without id", danglingRef},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(ctx, nil, tt.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), err.Error())
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.StockMovement{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordNeverFailsOnInsufficiency(t *testing.T) {
	db := dbtest.Open(t, "ledger")
	fx := dbtest.Seed(t, db, "1.00")
	svc := newLedger(t, db, fx.TenantID, nil)

	_, err := svc.Record(context.Background(), nil, movementInput(fx, fx.Outlet, enums.MovementTypeSale, -5))
	require.NoError(t, err)
	assert.Equal(t, -5, dbtest.Summary(t, db, fx.Key(fx.Outlet)).StockCount)
}

func TestRecordInsideCallerTransactionRollsBack(t *testing.T) {
	db := dbtest.Open(t, "ledger")
	fx := dbtest.Seed(t, db, "1.00")
	svc := newLedger(t, db, fx.TenantID, nil)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Record(context.Background(), tx, movementInput(fx, fx.Outlet, enums.MovementTypePurchase, 7)); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeInternal, "abort")
	})
	require.Error(t, err)

	assert.Zero(t, dbtest.SumMovements(t, db, fx.Key(fx.Outlet)))
	var count int64
	require.NoError(t, db.Model(&models.InventorySummary{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListMovementsPagesNewestFirst(t *testing.T) {
	db := dbtest.Open(t, "ledger")
	fx := dbtest.Seed(t, db, "1.00")
	svc := newLedger(t, db, fx.TenantID, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		_, err := svc.Record(ctx, nil, movementInput(fx, fx.Outlet, enums.MovementTypePurchase, i))
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, nil, movementInput(fx, fx.Warehouse, enums.MovementTypePurchase, 100))
	require.NoError(t, err)

	filter := MovementFilter{LocationID: fx.Outlet}
	seen := map[uuid.UUID]bool{}
	params := pagination.Params{Limit: 2}
	pages := 0
	for {
		page, err := svc.ListMovements(ctx, filter, params)
		require.NoError(t, err)
		pages++
		for _, m := range page.Items {
			assert.Equal(t, fx.Outlet, m.LocationID)
			assert.False(t, seen[m.ID], "movement listed twice")
			seen[m.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		params.Cursor = page.NextCursor
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	_, err = svc.ListMovements(ctx, filter, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListByReferenceAndTenantScope(t *testing.T) {
	db := dbtest.Open(t, "ledger")
	fx := dbtest.Seed(t, db, "1.00")
	svc := newLedger(t, db, fx.TenantID, nil)
	ctx := context.Background()

	ref := uuid.New()
	input := movementInput(fx, fx.Outlet, enums.MovementTypeReceipt, 3)
	input.ReferenceType = enums.ReferenceTypeManual
	input.ReferenceID = &ref
	_, err := svc.Record(ctx, nil, input)
	require.NoError(t, err)

	rows, err := svc.ListByReference(ctx, enums.ReferenceTypeManual, ref)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Quantity)

	other := newLedger(t, db, uuid.New(), nil)
	rows, err = other.ListByReference(ctx, enums.ReferenceTypeManual, ref)
	require.NoError(t, err)
	assert.Empty(t, rows)

	foreignKey := fx.Key(fx.Outlet)
	_, err = other.CurrentStock(ctx, nil, foreignKey)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
