package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockcore/internal/catalog"
	"github.com/angelmondragon/stockcore/internal/inventory"
	"github.com/angelmondragon/stockcore/internal/ledger"
	"github.com/angelmondragon/stockcore/internal/payments"
	"github.com/angelmondragon/stockcore/internal/pricing"
	"github.com/angelmondragon/stockcore/internal/reservations"
	"github.com/angelmondragon/stockcore/pkg/config"
	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/db/dbtest"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockcore/pkg/errors"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/pagination"
)

type harness struct {
	db     *gorm.DB
	fx     dbtest.Fixture
	svc    Service
	ledger ledger.Service
}

func newHarness(t *testing.T, strict bool) harness {
	t.Helper()
	db := dbtest.Open(t, "orders")
	fx := dbtest.Seed(t, db, "10.00")
	return harness{db: db, fx: fx}.build(t, fx.TenantID, strict)
}

func (h harness) build(t *testing.T, tenantID uuid.UUID, strict bool) harness {
	t.Helper()
	db := h.db
	runner := pkgdb.NewFromGorm(db)
	events := outbox.NewService(outbox.NewRepository(db), nil)

	agg, err := inventory.NewAggregator(inventory.NewRepository(db, tenantID), runner, nil, nil)
	require.NoError(t, err)
	ldg, err := ledger.NewService(ledger.NewRepository(db, tenantID), runner, agg, nil, nil)
	require.NoError(t, err)
	gw, err := catalog.NewGateway(catalog.NewRepository(db, tenantID))
	require.NoError(t, err)
	prices, err := pricing.NewResolver(pricing.NewRepository(db, tenantID), gw, nil,
		config.PricingConfig{Strict: strict, Tolerance: 0.02}, config.CacheConfig{PriceTTL: time.Minute}, nil)
	require.NoError(t, err)
	res, err := reservations.NewManager(reservations.NewRepository(db, tenantID), agg, nil, nil)
	require.NoError(t, err)
	pay, err := payments.NewCollaborator(payments.NewRepository(db, tenantID), runner, nil, config.PaymentsConfig{}, events, nil)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:         NewRepository(db, tenantID),
		Tx:           runner,
		Catalog:      gw,
		Prices:       prices,
		Reservations: res,
		Ledger:       ldg,
		Payments:     pay,
		Outbox:       events,
	})
	require.NoError(t, err)
	h.svc = svc
	h.ledger = ldg
	return h
}

func (h harness) stock(t *testing.T, qty int) {
	t.Helper()
	_, err := h.ledger.Record(context.Background(), nil, ledger.RecordMovementInput{
		LocationID: h.fx.Outlet, ProductID: h.fx.ProductID, VariantID: h.fx.VariantID,
		MovementType: enums.MovementTypePurchase, Quantity: qty,
	})
	require.NoError(t, err)
}

func (h harness) summary(t *testing.T) models.InventorySummary {
	t.Helper()
	return dbtest.Summary(t, h.db, h.fx.Key(h.fx.Outlet))
}

func (h harness) create(t *testing.T, orderType enums.OrderType, qty int) *models.Order {
	t.Helper()
	order, err := h.svc.Create(context.Background(), CreateOrderInput{
		LocationID: h.fx.Outlet,
		OrderType:  orderType,
		Lines:      []LineInput{{ProductID: h.fx.ProductID, Quantity: qty}},
	})
	require.NoError(t, err)
	return order
}

func (h harness) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateSalesOrderPricesAndReserves(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 10)

	order, err := h.svc.Create(context.Background(), CreateOrderInput{
		LocationID: h.fx.Outlet,
		OrderType:  enums.OrderTypeSales,
		Lines:      []LineInput{{ProductID: h.fx.ProductID, Quantity: 3, TaxRate: dec("0.10")}},
	})
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, order.PaymentStatus)
	assert.False(t, order.InventoryUpdated)
	assert.True(t, order.SubtotalAmount.Equal(dec("30")), order.SubtotalAmount.String())
	assert.True(t, order.TaxAmount.Equal(dec("3")), order.TaxAmount.String())
	assert.True(t, order.TotalAmount.Equal(dec("33")), order.TotalAmount.String())
	require.Len(t, order.Lines, 1)
	assert.Equal(t, h.fx.VariantID, order.Lines[0].VariantID)
	assert.True(t, order.Lines[0].LineTotal.Equal(dec("33")))

	s := h.summary(t)
	assert.Equal(t, 10, s.StockCount)
	assert.Equal(t, 3, s.ReservedStock)
	assert.EqualValues(t, 1, h.countEvents(t, enums.EventOrderCreated))
}

func TestCreateRejectsOversellAndWritesNothing(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 5)

	_, err := h.svc.Create(context.Background(), CreateOrderInput{
		LocationID: h.fx.Outlet,
		OrderType:  enums.OrderTypeSales,
		Lines: []LineInput{
			{ProductID: h.fx.ProductID, Quantity: 4},
			{ProductID: h.fx.ProductID, VariantID: h.fx.VariantID, Quantity: 2},
		},
	})
	require.Error(t, err)
	shortfall, ok := pkgerrors.As(err).Shortfall()
	require.True(t, ok)
	assert.Equal(t, 1, shortfall.Available)
	assert.Equal(t, 2, shortfall.Requested)

	var orders int64
	require.NoError(t, h.db.Model(&models.Order{}).Count(&orders).Error)
	assert.Zero(t, orders)
	assert.Zero(t, h.summary(t).ReservedStock)
	assert.Zero(t, h.countEvents(t, enums.EventOrderCreated))
}

func TestCancellationReversesCommittedSale(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 10)
	ctx := context.Background()

	order := h.create(t, enums.OrderTypeSales, 3)
	assert.Equal(t, 3, h.summary(t).ReservedStock)

	order, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusDelivered})
	require.NoError(t, err)
	assert.True(t, order.InventoryUpdated)
	s := h.summary(t)
	assert.Equal(t, 7, s.StockCount)
	assert.Zero(t, s.ReservedStock)

	order, err = h.svc.Cancel(ctx, CancelInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	require.NotNil(t, order.CancelledAt)
	assert.Equal(t, 10, h.summary(t).StockCount)
	assert.Equal(t, 10, dbtest.SumMovements(t, h.db, h.fx.Key(h.fx.Outlet)))

	movements, err := h.ledger.ListByReference(ctx, enums.ReferenceTypeOrder, order.ID)
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, enums.MovementTypeSale, movements[0].MovementType)
	assert.Equal(t, -3, movements[0].Quantity)
	assert.Equal(t, enums.MovementTypeReturn, movements[1].MovementType)
	assert.Equal(t, 3, movements[1].Quantity)
	require.NotNil(t, movements[1].Notes)
	assert.Equal(t, "reversal: order cancelled", *movements[1].Notes)

	again, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, again.Status)
	assert.EqualValues(t, 1, h.countEvents(t, enums.EventOrderCancelled))
	assert.Equal(t, 10, h.summary(t).StockCount)
}

func TestInventoryCommitsOnce(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 10)
	ctx := context.Background()
	order := h.create(t, enums.OrderTypeSales, 2)

	for _, status := range []enums.OrderStatus{enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusShipped, enums.OrderStatusCompleted} {
		_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: status})
		require.NoError(t, err, status)
	}

	movements, err := h.ledger.ListByReference(ctx, enums.ReferenceTypeOrder, order.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
	assert.Equal(t, 8, h.summary(t).StockCount)
	assert.EqualValues(t, 3, h.countEvents(t, enums.EventOrderStatusChanged))
}

func TestUpdateStatusRejectsInvalidTransitions(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 10)
	ctx := context.Background()
	order := h.create(t, enums.OrderTypeSales, 1)

	_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusShipped})
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusProcessing})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusCompleted})
	require.NoError(t, err)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusDelivered})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "lost"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: uuid.New(), Status: enums.OrderStatusShipped})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCancelPendingSaleReleasesReservation(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 4)
	order := h.create(t, enums.OrderTypeSales, 4)
	assert.Zero(t, h.summary(t).Available())

	order, err := h.svc.UpdateStatus(context.Background(), UpdateStatusInput{OrderID: order.ID, Status: enums.OrderStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)

	s := h.summary(t)
	assert.Equal(t, 4, s.StockCount)
	assert.Zero(t, s.ReservedStock)
	movements, err := h.ledger.ListByReference(context.Background(), enums.ReferenceTypeOrder, order.ID)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestPurchaseAndReturnOrders(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	purchase, err := h.svc.Create(ctx, CreateOrderInput{
		LocationID: h.fx.Outlet,
		OrderType:  enums.OrderTypePurchase,
		Lines:      []LineInput{{ProductID: h.fx.ProductID, Quantity: 6, UnitPrice: ptr(dec("4.50"))}},
	})
	require.NoError(t, err)
	assert.True(t, purchase.TotalAmount.Equal(dec("27")))
	var summaries int64
	require.NoError(t, h.db.Model(&models.InventorySummary{}).Count(&summaries).Error)
	assert.Zero(t, summaries, "purchase orders hold no reservation")

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: purchase.ID, Status: enums.OrderStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, 6, h.summary(t).StockCount)

	_, err = h.svc.Cancel(ctx, CancelInput{OrderID: purchase.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 6, h.summary(t).StockCount)

	ret := h.create(t, enums.OrderTypeReturn, 2)
	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: ret.ID, Status: enums.OrderStatusProcessing})
	require.NoError(t, err)
	assert.Equal(t, 8, h.summary(t).StockCount)

	pending := h.create(t, enums.OrderTypePurchase, 1)
	cancelled, err := h.svc.Cancel(ctx, CancelInput{OrderID: pending.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, 8, h.summary(t).StockCount)
}

func TestCreatePriceValidation(t *testing.T) {
	lenient := newHarness(t, false)
	lenient.stock(t, 5)
	order, err := lenient.svc.Create(context.Background(), CreateOrderInput{
		LocationID: lenient.fx.Outlet,
		OrderType:  enums.OrderTypeSales,
		Lines:      []LineInput{{ProductID: lenient.fx.ProductID, Quantity: 1, UnitPrice: ptr(dec("9.00"))}},
	})
	require.NoError(t, err)
	assert.True(t, order.Lines[0].UnitPrice.Equal(dec("9")))

	strict := newHarness(t, true)
	strict.stock(t, 5)
	_, err = strict.svc.Create(context.Background(), CreateOrderInput{
		LocationID: strict.fx.Outlet,
		OrderType:  enums.OrderTypeSales,
		Lines:      []LineInput{{ProductID: strict.fx.ProductID, Quantity: 1, UnitPrice: ptr(dec("9.00"))}},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, strict.summary(t).ReservedStock)

	order, err = strict.svc.Create(context.Background(), CreateOrderInput{
		LocationID: strict.fx.Outlet,
		OrderType:  enums.OrderTypeSales,
		Lines:      []LineInput{{ProductID: strict.fx.ProductID, Quantity: 1, UnitPrice: ptr(dec("10.01"))}},
	})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(dec("10.01")))
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, false)
	inactive := dbtest.SeedProduct(t, h.db, h.fx.TenantID, "1.00")
	require.NoError(t, h.db.Model(inactive).Update("is_active", false).Error)

	tests := []struct {
		name  string
		input CreateOrderInput
		code  pkgerrors.Code
	}{
		{"no lines", CreateOrderInput{LocationID: h.fx.Outlet, OrderType: enums.OrderTypeSales}, pkgerrors.CodeValidation},
		{"zero quantity", CreateOrderInput{LocationID: h.fx.Outlet, OrderType: enums.OrderTypeSales,
			Lines: []LineInput{{ProductID: h.fx.ProductID}}}, pkgerrors.CodeValidation},
		{"bad order type", CreateOrderInput{LocationID: h.fx.Outlet, OrderType: "gift",
			Lines: []LineInput{{ProductID: h.fx.ProductID, Quantity: 1}}}, pkgerrors.CodeValidation},
		{"negative tax", CreateOrderInput{LocationID: h.fx.Outlet, OrderType: enums.OrderTypeSales,
			Lines: []LineInput{{ProductID: h.fx.ProductID, Quantity: 1, TaxRate: dec("-0.1")}}}, pkgerrors.CodeValidation},
		{"inactive product", CreateOrderInput{LocationID: h.fx.Outlet, OrderType: enums.OrderTypeSales,
			Lines: []LineInput{{ProductID: inactive.ID, Quantity: 1}}}, pkgerrors.CodeValidation},
		{"unknown location", CreateOrderInput{LocationID: uuid.New(), OrderType: enums.OrderTypeSales,
			Lines: []LineInput{{ProductID: h.fx.ProductID, Quantity: 1}}}, pkgerrors.CodeNotFound},
		{"unknown product", CreateOrderInput{LocationID: h.fx.Outlet, OrderType: enums.OrderTypeSales,
			Lines: []LineInput{{ProductID: uuid.New(), Quantity: 1}}}, pkgerrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.code, pkgerrors.CodeOf(err))
		})
	}
}

func TestPayments(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 10)
	ctx := context.Background()

	order, err := h.svc.Create(ctx, CreateOrderInput{
		LocationID: h.fx.Outlet,
		OrderType:  enums.OrderTypeSales,
		Lines:      []LineInput{{ProductID: h.fx.ProductID, Quantity: 1}},
		Payment:    &PaymentInput{GatewayReference: "pi_1", Status: enums.PaymentStatusPending, Amount: dec("10")},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)

	order, err = h.svc.ApplyPayment(ctx, PaymentUpdate{OrderID: order.ID, GatewayReference: "pi_2", Status: enums.PaymentStatusPaid, Amount: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)

	order, err = h.svc.ApplyPayment(ctx, PaymentUpdate{OrderID: order.ID, GatewayReference: "pi_1", Status: enums.PaymentStatusPending})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus, "replayed notification is ignored")

	order, err = h.svc.ApplyPayment(ctx, PaymentUpdate{OrderID: order.ID, GatewayReference: "pi_3", Status: enums.PaymentStatusFailed, Amount: dec("10")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus, "late failure does not regress a paid order")

	other := h.create(t, enums.OrderTypeSales, 1)
	_, err = h.svc.ApplyPayment(ctx, PaymentUpdate{OrderID: other.ID, GatewayReference: "pi_2", Status: enums.PaymentStatusPaid})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	stored, err := h.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentReference)
	assert.Equal(t, "pi_2", *stored.PaymentReference)
	assert.EqualValues(t, 3, h.countEvents(t, enums.EventPaymentRecorded))
}

func TestGetAndListAreTenantScoped(t *testing.T) {
	h := newHarness(t, false)
	h.stock(t, 10)
	ctx := context.Background()
	first := h.create(t, enums.OrderTypeSales, 1)
	h.create(t, enums.OrderTypeSales, 1)
	h.create(t, enums.OrderTypePurchase, 1)

	got, err := h.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)

	page, err := h.svc.List(ctx, OrderFilter{OrderType: enums.OrderTypeSales}, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotEmpty(t, page.NextCursor)
	next, err := h.svc.List(ctx, OrderFilter{OrderType: enums.OrderTypeSales}, pagination.Params{Limit: 1, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.NextCursor)

	other := h.build(t, uuid.New(), false)
	_, err = other.svc.Get(ctx, first.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = other.svc.Cancel(ctx, CancelInput{OrderID: first.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	empty, err := other.svc.List(ctx, OrderFilter{}, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
}

func ptr[T any](v T) *T { return &v }

func TestPaymentSameReferenceMovesOrderForward(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	order := h.create(t, enums.OrderTypePurchase, 2)

	order, err := h.svc.ApplyPayment(ctx, PaymentUpdate{OrderID: order.ID, GatewayReference: "pay_1", Status: enums.PaymentStatusPending, Amount: dec("4")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)

	order, err = h.svc.ApplyPayment(ctx, PaymentUpdate{OrderID: order.ID, GatewayReference: "pay_1", Status: enums.PaymentStatusPaid, Amount: dec("4")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)

	stored, err := h.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, stored.PaymentStatus)
	assert.EqualValues(t, 2, h.countEvents(t, enums.EventPaymentRecorded))
}
