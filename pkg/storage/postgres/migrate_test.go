package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/platinummonkey/thoughtnest/pkg/storage/postgres/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubGoose(t *testing.T, up, down, status func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error) {
	t.Helper()
	origUp, origDown, origStatus := gooseUpContext, gooseDownContext, gooseStatusContext
	t.Cleanup(func() {
		gooseUpContext, gooseDownContext, gooseStatusContext = origUp, origDown, origStatus
	})
	if up != nil {
		gooseUpContext = up
	}
	if down != nil {
		gooseDownContext = down
	}
	if status != nil {
		gooseStatusContext = status
	}
}

func TestMigrate_RunsEmbeddedMigrations(t *testing.T) {
	var gotDir string
	stubGoose(t, func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}, nil, nil)

	require.NoError(t, Migrate(context.Background(), nil, nil))
	assert.Equal(t, ".", gotDir)
}

func TestMigrate_WrapsErrors(t *testing.T) {
	boom := errors.New("relation exists")
	fail := func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error { return boom }
	stubGoose(t, fail, fail, fail)

	err := Migrate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to apply migrations")

	err = MigrateDown(context.Background(), nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to roll back migration")

	err = MigrationStatus(context.Background(), nil, nil)
	assert.ErrorIs(t, err, boom)
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	body, err := fs.ReadFile(migrations.FS, files[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "-- +goose Up")
	assert.Contains(t, string(body), "-- +goose Down")
	assert.Contains(t, string(body), "password_reset_tokens_user_id_key")
}
