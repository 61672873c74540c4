package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/stockcore/pkg/config"
	"github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/metrics"
	"github.com/angelmondragon/stockcore/pkg/migrate"
	"github.com/angelmondragon/stockcore/pkg/outbox"
	"github.com/angelmondragon/stockcore/pkg/outbox/registry"
	"github.com/angelmondragon/stockcore/pkg/pubsub"
	"github.com/angelmondragon/stockcore/pkg/tracing"
)

const serviceName = "outbox-publisher"

var version = "dev"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"service_kind": serviceName,
		"backend":      cfg.Publisher.Backend,
	})

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, serviceName, version)
	if err != nil {
		logg.Error(ctx, "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	eventRegistry, err := registry.NewEventRegistry(cfg.Outbox)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		os.Exit(1)
	}

	out, closeSink, err := openSink(ctx, cfg, eventRegistry.Topics(), logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap publisher sink", err)
		os.Exit(1)
	}
	defer closeSink()

	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Sink:          out,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewPublisherMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox publisher", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

func openSink(ctx context.Context, cfg *config.Config, topics []string, logg *logger.Logger) (sink, func(), error) {
	if strings.EqualFold(strings.TrimSpace(cfg.Publisher.Backend), config.PublisherBackendKafka) {
		k, err := newKafkaSink(cfg.Kafka)
		if err != nil {
			return nil, nil, err
		}
		return k, func() {
			if err := k.Close(); err != nil {
				logg.Error(context.Background(), "error closing kafka writer", err)
			}
		}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, topics, logg)
	if err != nil {
		return nil, nil, err
	}
	ps := newPubSubSink(client)
	return ps, func() {
		ps.Close()
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}, nil
}
