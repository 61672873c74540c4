package transfers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/catalog"
	"github.com/angelmondragon/stockcore/internal/inventory"
	"github.com/angelmondragon/stockcore/internal/ledger"
	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/db/dbtest"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/outbox/payloads"
)

type harness struct {
	svc    Service
	ledger ledger.Service
}

func newHarness(t *testing.T, db *gorm.DB, tenantID uuid.UUID) harness {
	t.Helper()
	runner := pkgdb.NewFromGorm(db)
	agg, err := inventory.NewAggregator(inventory.NewRepository(db, tenantID), runner, nil, nil)
	require.NoError(t, err)
	ldg, err := ledger.NewService(ledger.NewRepository(db, tenantID), runner, agg, nil, nil)
	require.NoError(t, err)
	gw, err := catalog.NewGateway(catalog.NewRepository(db, tenantID))
	require.NoError(t, err)
	svc, err := NewService(tenantID, runner, gw, ldg, agg, outbox.NewService(outbox.NewRepository(db), nil), nil)
	require.NoError(t, err)
	return harness{svc: svc, ledger: ldg}
}

func (h harness) stock(t *testing.T, fx dbtest.Fixture, location uuid.UUID, qty int) {
	t.Helper()
	_, err := h.ledger.Record(context.Background(), nil, ledger.RecordMovementInput{
		LocationID: location, ProductID: fx.ProductID, VariantID: fx.VariantID,
		MovementType: enums.MovementTypePurchase, Quantity: qty,
	})
	require.NoError(t, err)
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestTransferConservesStock(t *testing.T) {
	db := dbtest.Open(t, "transfers")
	fx := dbtest.Seed(t, db, "1.00")
	h := newHarness(t, db, fx.TenantID)
	h.stock(t, fx, fx.Warehouse, 10)

	before := dbtest.SumMovements(t, db, fx.Key(fx.Warehouse)) + dbtest.SumMovements(t, db, fx.Key(fx.Outlet))

	res, err := h.svc.Transfer(context.Background(), TransferInput{
		SourceLocationID: fx.Warehouse,
		DestLocationID:   fx.Outlet,
		Items:            []Item{{ProductID: fx.ProductID, VariantID: fx.VariantID, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Len(t, res.Movements, 2)

	for _, m := range res.Movements {
		require.NotNil(t, m.ReferenceID)
		assert.Equal(t, res.ReferenceID, *m.ReferenceID)
		assert.Equal(t, enums.ReferenceTypeTransfer, m.ReferenceType)
	}
	assert.Equal(t, enums.MovementTypeTransferOut, res.Movements[0].MovementType)
	assert.Equal(t, -4, res.Movements[0].Quantity)
	assert.Equal(t, enums.MovementTypeTransferIn, res.Movements[1].MovementType)
	assert.Equal(t, 4, res.Movements[1].Quantity)

	after := dbtest.SumMovements(t, db, fx.Key(fx.Warehouse)) + dbtest.SumMovements(t, db, fx.Key(fx.Outlet))
	assert.Equal(t, before, after)
	assert.Equal(t, 6, dbtest.Summary(t, db, fx.Key(fx.Warehouse)).StockCount)
	assert.Equal(t, 4, dbtest.Summary(t, db, fx.Key(fx.Outlet)).StockCount)

	rows, err := h.ledger.ListByReference(context.Background(), enums.ReferenceTypeTransfer, res.ReferenceID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	var events []models.OutboxEvent
	require.NoError(t, db.Where("aggregate_id = ?", res.ReferenceID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventInventoryTransferred, events[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var payload payloads.InventoryTransferredEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	require.Len(t, payload.Items, 1)
	assert.Equal(t, 4, payload.Items[0].Quantity)
}

func TestTransferInsufficientWritesNothing(t *testing.T) {
	db := dbtest.Open(t, "transfers")
	fx := dbtest.Seed(t, db, "1.00")
	h := newHarness(t, db, fx.TenantID)
	h.stock(t, fx, fx.Warehouse, 2)
	movementsBefore := countRows(t, db, &models.StockMovement{})

	_, err := h.svc.Transfer(context.Background(), TransferInput{
		SourceLocationID: fx.Warehouse,
		DestLocationID:   fx.Outlet,
		Items:            []Item{{ProductID: fx.ProductID, VariantID: fx.VariantID, Quantity: 3}},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	shortfall, ok := typed.Shortfall()
	require.True(t, ok)
	assert.Equal(t, 2, shortfall.Available)
	assert.Equal(t, 3, shortfall.Requested)

	assert.Equal(t, movementsBefore, countRows(t, db, &models.StockMovement{}))
	assert.Zero(t, countRows(t, db, &models.OutboxEvent{}))
	assert.Equal(t, 2, dbtest.SumMovements(t, db, fx.Key(fx.Warehouse)))
	assert.Zero(t, dbtest.SumMovements(t, db, fx.Key(fx.Outlet)))
}

func TestTransferFailingItemAbortsAll(t *testing.T) {
	db := dbtest.Open(t, "transfers")
	fx := dbtest.Seed(t, db, "1.00")
	h := newHarness(t, db, fx.TenantID)
	h.stock(t, fx, fx.Warehouse, 10)
	other := dbtest.SeedProduct(t, db, fx.TenantID, "2.00")

	_, err := h.svc.Transfer(context.Background(), TransferInput{
		SourceLocationID: fx.Warehouse,
		DestLocationID:   fx.Outlet,
		Items: []Item{
			{ProductID: fx.ProductID, VariantID: fx.VariantID, Quantity: 5},
			{ProductID: other.ID, Quantity: 1},
		},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 10, dbtest.SumMovements(t, db, fx.Key(fx.Warehouse)))
	assert.Zero(t, countRows(t, db, &models.OutboxEvent{}))
}

func TestTransferMergesRepeatedItems(t *testing.T) {
	db := dbtest.Open(t, "transfers")
	fx := dbtest.Seed(t, db, "1.00")
	h := newHarness(t, db, fx.TenantID)
	h.stock(t, fx, fx.Warehouse, 5)

	_, err := h.svc.Transfer(context.Background(), TransferInput{
		SourceLocationID: fx.Warehouse,
		DestLocationID:   fx.Outlet,
		Items: []Item{
			{ProductID: fx.ProductID, Quantity: 3},
			{ProductID: fx.ProductID, VariantID: fx.VariantID, Quantity: 3},
		},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock), "missing variant resolves to the default and merges")
}

func TestTransferValidation(t *testing.T) {
	db := dbtest.Open(t, "transfers")
	fx := dbtest.Seed(t, db, "1.00")
	h := newHarness(t, db, fx.TenantID)
	foreignLocation := dbtest.SeedLocation(t, db, uuid.New(), enums.LocationKindOutlet)

	tests := []struct {
		name  string
		input TransferInput
		code  pkgerrors.Code
	}{
		{"same location", TransferInput{SourceLocationID: fx.Outlet, DestLocationID: fx.Outlet,
			Items: []Item{{ProductID: fx.ProductID, Quantity: 1}}}, pkgerrors.CodeValidation},
		{"no items", TransferInput{SourceLocationID: fx.Warehouse, DestLocationID: fx.Outlet}, pkgerrors.CodeValidation},
		{"zero quantity", TransferInput{SourceLocationID: fx.Warehouse, DestLocationID: fx.Outlet,
			Items: []Item{{ProductID: fx.ProductID}}}, pkgerrors.CodeValidation},
		{"foreign destination", TransferInput{SourceLocationID: fx.Warehouse, DestLocationID: foreignLocation.ID,
			Items: []Item{{ProductID: fx.ProductID, Quantity: 1}}}, pkgerrors.CodeNotFound},
		{"unknown product", TransferInput{SourceLocationID: fx.Warehouse, DestLocationID: fx.Outlet,
			Items: []Item{{ProductID: uuid.New(), Quantity: 1}}}, pkgerrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Transfer(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, pkgerrors.CodeOf(err))
		})
	}
}
