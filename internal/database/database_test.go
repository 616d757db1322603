package database_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-accounts/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDriver(t *testing.T) {
	assert.Equal(t, database.DriverSQLite, database.NormalizeDriver(""))
	assert.Equal(t, database.DriverSQLite, database.NormalizeDriver("sqlite3"))
	assert.Equal(t, database.DriverPostgres, database.NormalizeDriver("PostgreSQL"))
	assert.Equal(t, database.DriverPostgres, database.NormalizeDriver("pgx"))
	assert.Equal(t, "mysql", database.NormalizeDriver("mysql"))
}

func TestOpenSQLiteInMemory(t *testing.T) {
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Driver: "sqlite"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, database.DriverSQLite, db.Driver)
	require.NoError(t, db.Ping(ctx))

	var n int
	require.NoError(t, db.Bun.NewRaw("SELECT 1").Scan(ctx, &n))
	assert.Equal(t, 1, n)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := database.Open(context.Background(), database.Config{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestOpenPostgresBadDSN(t *testing.T) {
	_, err := database.Open(context.Background(), database.Config{
		Driver: "postgres",
		DSN:    "://not a dsn",
	})
	require.Error(t, err)
}
