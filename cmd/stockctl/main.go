// Command stockctl is the operator CLI: stock lookups, receipts, count
// corrections, transfers, price checks, and summary rebuilds.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stockcore/internal/engine"
	"github.com/angelmondragon/stockcore/pkg/config"
	"github.com/angelmondragon/stockcore/pkg/logger"
)

func main() {
	tenant := flag.String("tenant", "", "tenant id")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText()) }
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "stockctl"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "stockctl"
	logg = logger.New(logger.Options{
		ServiceName: "stockctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	rt, err := engine.Open(ctx, cfg, logg, nil)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap engine", err)
		os.Exit(1)
	}

	ok, err := dispatch(ctx, rt.Engine, *tenant, flag.Args(), os.Stdout)
	if closeErr := rt.Close(); closeErr != nil {
		logg.Error(ctx, "error closing connections", closeErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockctl: %v\n\n%s", err, usageText())
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}
