package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/platinummonkey/thoughtnest/pkg/config"
	"github.com/platinummonkey/thoughtnest/pkg/janitor"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/storage/postgres"
)

var (
	configFile = flag.String("config", "", "Path to a YAML config file (overrides THOUGHTNEST_CONFIG_FILE)")
	envFile    = flag.String("env-file", "", "Path to a .env file (overrides THOUGHTNEST_ENV_FILE)")
	schedule   = flag.String("schedule", "", "Cron schedule for purging expired reset tokens (default: janitor.schedule from config)")
	runOnce    = flag.Bool("run-once", false, "Purge expired reset tokens once and exit")
	timeout    = flag.Duration("timeout", time.Minute, "Upper bound for a single purge")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadJobConfig(config.LoadOptions{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout).
		WithField("service", "thoughtnest-janitor")

	ctx, stop := observability.SignalContext(context.Background())
	defer stop()

	pg := cfg.Storage.Postgres
	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:          pg.URL,
		MaxConns:     2,
		MaxIdleConns: 1,
		MaxLifetime:  pg.ConnMaxLifetime,
		Timeout:      pg.ConnectTimeout,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	sched := *schedule
	if sched == "" {
		sched = cfg.Janitor.Schedule
	}
	j := janitor.New(postgres.NewUserStore(db), janitor.Options{
		Schedule: sched,
		Timeout:  *timeout,
		Logger:   logger,
	})

	// Run once mode (for cron jobs managed outside the process)
	if *runOnce {
		n, err := j.RunOnce(ctx)
		if err != nil {
			logger.WithError(err).Error("Purge failed")
			os.Exit(1)
		}
		logger.WithField("purged", n).Info("Purge completed")
		return
	}

	if err := j.Start(); err != nil {
		logger.WithError(err).Error("Failed to start janitor")
		os.Exit(1)
	}
	logger.WithField("schedule", sched).Info("ThoughtNest janitor started")

	shutdown := observability.NewShutdownManager(logger, *timeout)
	shutdown.Register("janitor", j.Stop)
	if err := shutdown.WaitForShutdown(ctx); err != nil {
		logger.WithError(err).Warn("Janitor did not stop cleanly")
	}
}
