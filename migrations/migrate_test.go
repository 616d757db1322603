package migrations_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts/internal/database"
	"github.com/goliatone/go-accounts/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLogger struct {
	infos  []string
	errors []string
}

func (c *captureLogger) Info(format string, args ...any)  { c.infos = append(c.infos, format) }
func (c *captureLogger) Error(format string, args ...any) { c.errors = append(c.errors, format) }

func TestDialect(t *testing.T) {
	d, err := migrations.Dialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", d)

	d, err = migrations.Dialect("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d)

	_, err = migrations.Dialect("oracle")
	assert.Error(t, err)
}

func TestMigrateSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Driver: database.DriverSQLite})
	require.NoError(t, err)
	defer db.Close()

	logger := &captureLogger{}
	require.NoError(t, migrations.Migrate(ctx, db.SQL, db.Driver, logger))

	version, err := migrations.Version(ctx, db.SQL, db.Driver)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// second run is a no-op
	require.NoError(t, migrations.Migrate(ctx, db.SQL, db.Driver, logger))
	assert.Empty(t, logger.errors)

	for _, table := range []string{"users", "user_attributes"} {
		var count int
		err := db.Bun.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(ctx, &count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, table)
	}
}
