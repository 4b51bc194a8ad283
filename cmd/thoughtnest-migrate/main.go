package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/platinummonkey/thoughtnest/pkg/config"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/storage/postgres"
)

const usage = `Usage: thoughtnest-migrate [flags] <command>

Commands:
  up       Apply all pending migrations
  down     Roll back the most recent migration
  status   Print the state of every migration

Flags:
`

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file (overrides THOUGHTNEST_CONFIG_FILE)")
	envFile := flag.String("env-file", "", "Path to a .env file (overrides THOUGHTNEST_ENV_FILE)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadJobConfig(config.LoadOptions{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout).
		WithField("service", "thoughtnest-migrate")

	if err := run(cfg, logger, flag.Arg(0)); err != nil {
		logger.WithError(err).Error("Migration failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger, command string) error {
	ctx := context.Background()

	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:     cfg.Storage.Postgres.URL,
		Timeout: cfg.Storage.Postgres.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	switch command {
	case "up":
		return postgres.Migrate(ctx, db, logger)
	case "down":
		return postgres.MigrateDown(ctx, db, logger)
	case "status":
		return postgres.MigrationStatus(ctx, db, logger)
	default:
		return fmt.Errorf("unknown command %q (want up, down or status)", command)
	}
}
