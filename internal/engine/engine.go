// Package engine assembles the tenant-scoped component graph. Shared
// infrastructure (database, cache, redis, metrics) is built once; every
// ForTenant call returns repositories and services bound to one tenant id.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockcore/internal/adjustments"
	"github.com/angelmondragon/stockcore/internal/catalog"
	"github.com/angelmondragon/stockcore/internal/inventory"
	"github.com/angelmondragon/stockcore/internal/ledger"
	"github.com/angelmondragon/stockcore/internal/orders"
	"github.com/angelmondragon/stockcore/internal/payments"
	"github.com/angelmondragon/stockcore/internal/pricing"
	"github.com/angelmondragon/stockcore/internal/reservations"
	"github.com/angelmondragon/stockcore/internal/transfers"
	"github.com/angelmondragon/stockcore/pkg/cache"
	"github.com/angelmondragon/stockcore/pkg/config"
	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/db/models"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/metrics"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/redis"
)

const defaultOperationTimeout = 15 * time.Second

// Params carries the shared infrastructure. Cache, Idempotency, and Metrics
// are optional.
type Params struct {
	DB          *pkgdb.Client
	Cache       cache.Cache
	Idempotency redis.IdempotencyStore
	Metrics     *metrics.InventoryMetrics
	Pricing     config.PricingConfig
	CacheConfig config.CacheConfig
	Orders      config.OrdersConfig
	Payments    config.PaymentsConfig
	Logger      *logger.Logger
}

type Engine struct {
	db          *pkgdb.Client
	cache       cache.Cache
	idempotency redis.IdempotencyStore
	metrics     *metrics.InventoryMetrics
	outbox      *outbox.Service
	pricing     config.PricingConfig
	cacheCfg    config.CacheConfig
	payments    config.PaymentsConfig
	timeout     time.Duration
	logg        *logger.Logger
}

func New(p Params) (*Engine, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	logg := p.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	c := p.Cache
	if c == nil {
		c = cache.NewMemory()
	}
	m := p.Metrics
	if m == nil {
		m = metrics.NewInventoryMetrics(nil)
	}
	timeout := p.Orders.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return &Engine{
		db:          p.DB,
		cache:       c,
		idempotency: p.Idempotency,
		metrics:     m,
		outbox:      outbox.NewService(outbox.NewRepository(p.DB.DB()), logg),
		pricing:     p.Pricing,
		cacheCfg:    p.CacheConfig,
		payments:    p.Payments,
		timeout:     timeout,
		logg:        logg,
	}, nil
}

// Tenant is the component graph for one tenant.
type Tenant struct {
	ID           uuid.UUID
	Catalog      catalog.Gateway
	Ledger       ledger.Service
	Inventory    inventory.Aggregator
	Prices       pricing.Resolver
	Reservations reservations.Manager
	Transfers    transfers.Service
	Adjustments  adjustments.Service
	Payments     payments.Collaborator
	Orders       orders.Service

	timeout time.Duration
}

func (e *Engine) ForTenant(tenantID uuid.UUID) (*Tenant, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant id required")
	}
	db := e.db.DB()
	logg := e.logg

	gateway, err := catalog.NewGateway(catalog.NewRepository(db, tenantID))
	if err != nil {
		return nil, err
	}
	agg, err := inventory.NewAggregator(inventory.NewRepository(db, tenantID), e.db, e.metrics, logg)
	if err != nil {
		return nil, err
	}
	stock, err := ledger.NewService(ledger.NewRepository(db, tenantID), e.db, agg, e.metrics, logg)
	if err != nil {
		return nil, err
	}
	prices, err := pricing.NewResolver(pricing.NewRepository(db, tenantID), gateway, e.cache, e.pricing, e.cacheCfg, logg)
	if err != nil {
		return nil, err
	}
	res, err := reservations.NewManager(reservations.NewRepository(db, tenantID), agg, e.metrics, logg)
	if err != nil {
		return nil, err
	}
	moves, err := transfers.NewService(tenantID, e.db, gateway, stock, agg, e.outbox, logg)
	if err != nil {
		return nil, err
	}
	adjust, err := adjustments.NewService(tenantID, e.db, gateway, stock, agg, e.outbox, logg)
	if err != nil {
		return nil, err
	}
	pay, err := payments.NewCollaborator(payments.NewRepository(db, tenantID), e.db, e.idempotency, e.payments, e.outbox, logg)
	if err != nil {
		return nil, err
	}
	ords, err := orders.NewService(orders.ServiceParams{
		Repo:         orders.NewRepository(db, tenantID),
		Tx:           e.db,
		Catalog:      gateway,
		Prices:       prices,
		Reservations: res,
		Ledger:       stock,
		Payments:     pay,
		Outbox:       e.outbox,
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}

	return &Tenant{
		ID:           tenantID,
		Catalog:      gateway,
		Ledger:       stock,
		Inventory:    agg,
		Prices:       prices,
		Reservations: res,
		Transfers:    moves,
		Adjustments:  adjust,
		Payments:     pay,
		Orders:       ords,
		timeout:      e.timeout,
	}, nil
}

// Run bounds fn by the configured operation timeout. Cancellation surfaces
// at the transaction boundary of whatever fn calls.
func (t *Tenant) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return fn(ctx)
}

// Tenants lists every tenant that has ledger history or summary rows.
func (e *Engine) Tenants(ctx context.Context) ([]uuid.UUID, error) {
	var raw []string
	err := e.db.DB().WithContext(ctx).
		Raw("SELECT tenant_id FROM stock_movements UNION SELECT tenant_id FROM inventory_summaries").
		Scan(&raw).Error
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, value := range raw {
		id, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("parse tenant id %q: %w", value, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RebuildAll runs the aggregator rebuild for every tenant. One tenant failing
// does not stop the others; errors are combined.
func (e *Engine) RebuildAll(ctx context.Context) ([]inventory.RebuildReport, error) {
	tenants, err := e.Tenants(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]inventory.RebuildReport, 0, len(tenants))
	var errs error
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return reports, multierr.Append(errs, err)
		}
		t, err := e.ForTenant(tenantID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		var report *inventory.RebuildReport
		err = t.Run(ctx, func(ctx context.Context) error {
			var rebuildErr error
			report, rebuildErr = t.Inventory.Rebuild(ctx)
			return rebuildErr
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rebuild tenant %s: %w", tenantID, err))
			continue
		}
		reports = append(reports, *report)
	}
	return reports, errs
}

// Summary is a convenience read used by the operator CLI.
func (t *Tenant) Summary(ctx context.Context, key models.StockKey) (*models.InventorySummary, error) {
	var summary *models.InventorySummary
	err := t.Run(ctx, func(ctx context.Context) error {
		var getErr error
		summary, getErr = t.Inventory.Get(ctx, key)
		return getErr
	})
	return summary, err
}
