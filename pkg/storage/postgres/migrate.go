package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/platinummonkey/thoughtnest/pkg/storage/postgres/migrations"
	"github.com/pressly/goose/v3"
)

// goose keeps its base FS, dialect and logger in package state, so the
// runners below configure it on every call.
var (
	gooseUpContext     = goose.UpContext
	gooseDownContext   = goose.DownContext
	gooseStatusContext = goose.StatusContext
)

type gooseLogger struct {
	logger *observability.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.WithField("component", "migrate").Infof(format, v...)
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.WithField("component", "migrate").Errorf(format, v...)
}

func setupGoose(logger *observability.Logger) error {
	goose.SetBaseFS(migrations.FS)
	if logger != nil {
		goose.SetLogger(gooseLogger{logger: logger})
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if err := setupGoose(logger); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if err := setupGoose(logger); err != nil {
		return err
	}
	if err := gooseDownContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrationStatus logs the applied state of every migration.
func MigrationStatus(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if err := setupGoose(logger); err != nil {
		return err
	}
	if err := gooseStatusContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}
	return nil
}
