package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stockcore/pkg/config"
	"github.com/angelmondragon/stockcore/pkg/db"
	"github.com/angelmondragon/stockcore/pkg/logger"
	"github.com/angelmondragon/stockcore/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": *dir})

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		if *name == "" {
			exit("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name, time.Now())
		if err != nil {
			exit("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			exit("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "db_driver": cfg.DB.Driver})

	if cfg.DB.IsSQLite() {
		exit("goose migrations target postgres; sqlite schemas are built with STOCKCORE_AUTO_MIGRATE")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	logg.Info(ctx, "migrate ready")

	m, err := migrate.NewMigrator(sqlDB, *dir)
	requireResource(ctx, logg, "goose provider", err)
	defer m.Close()

	var steps []migrate.Step
	switch *cmd {
	case "up":
		steps, err = m.Up(ctx)
	case "down":
		steps, err = m.Down(ctx)
	case "status":
		steps, err = m.Status(ctx)
	case "version":
		if *version == "" {
			exit("missing -version for version command")
		}
		steps, err = m.To(ctx, *version)
	default:
		exit("unknown -cmd value: %s", *cmd)
	}
	printSteps(steps)
	if err != nil {
		exit("goose %s failed: %v", *cmd, err)
	}
}

func printSteps(steps []migrate.Step) {
	if len(steps) == 0 {
		fmt.Println("no migrations to apply")
		return
	}
	for _, s := range steps {
		line := fmt.Sprintf("%-8s %d %s", s.State, s.Version, s.Path)
		if s.Duration > 0 {
			line += " (" + s.Duration.Round(time.Millisecond).String() + ")"
		}
		if !s.AppliedAt.IsZero() {
			line += " applied " + s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Println(line)
	}
}

func exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
