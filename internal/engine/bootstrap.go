package engine

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockcore/pkg/cache"
	"github.com/angelmondragon/stockcore/pkg/config"
	pkgdb "github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/metrics"
	"github.com/angelmondragon/stockcore/pkg/migrate"
	"github.com/angelmondragon/stockcore/pkg/redis"
)

// Runtime owns the connections behind an Engine.
type Runtime struct {
	Engine *Engine
	DB     *pkgdb.Client
	// Redis is nil when no redis endpoint is configured.
	Redis *redis.Client
}

// Open connects to the database (and redis when configured), runs dev
// migrations, and builds the engine. reg may be nil.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (*Runtime, error) {
	dbClient, err := pkgdb.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	rt := &Runtime{DB: dbClient}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		rt.Close()
		return nil, fmt.Errorf("dev migrations: %w", err)
	}

	var idempotency redis.IdempotencyStore
	if cfg.Redis.Enabled() {
		rt.Redis, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
		idempotency = rt.Redis
	} else {
		logg.Warn(ctx, "redis not configured; payment guard and redis cache disabled")
	}

	priceCache, err := cache.New(cfg.Cache, rt.Redis)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.Engine, err = New(Params{
		DB:          dbClient,
		Cache:       priceCache,
		Idempotency: idempotency,
		Metrics:     metrics.NewInventoryMetrics(reg),
		Pricing:     cfg.Pricing,
		CacheConfig: cfg.Cache,
		Orders:      cfg.Orders,
		Payments:    cfg.Payments,
		Logger:      logg,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) Close() error {
	var errs error
	if r.Redis != nil {
		errs = multierr.Append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = multierr.Append(errs, r.DB.Close())
	}
	return errs
}
