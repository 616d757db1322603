// Package database opens the bun connection used by the account repositories.
package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrUnsupportedDriver        = errors.New("unsupported database driver")
	ErrFailedToOpenDBConnection = errors.New("failed to open database connection")
)

// Config describes the connection
type Config struct {
	Driver        string
	DSN           string
	MaxOpenConns  int32
	RetryAttempts int
	RetryInterval time.Duration
}

// DB bundles the bun handle with the underlying sql.DB goose needs
type DB struct {
	Bun    *bun.DB
	SQL    *sql.DB
	Driver string
	pool   *pgxpool.Pool
}

// Open connects using the configured driver
func Open(ctx context.Context, cfg Config) (*DB, error) {
	switch NormalizeDriver(cfg.Driver) {
	case DriverSQLite:
		return openSQLite(ctx, cfg)
	case DriverPostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, goerrors.Wrap(ErrUnsupportedDriver, goerrors.CategoryBadInput, "unsupported database driver").
			WithMetadata(map[string]any{"driver": cfg.Driver})
	}
}

// NormalizeDriver maps driver aliases to DriverSQLite or DriverPostgres
func NormalizeDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3", "sqliteshim":
		return DriverSQLite
	case "postgres", "postgresql", "pg", "pgx":
		return DriverPostgres
	default:
		return driver
	}
}

func openSQLite(ctx context.Context, cfg Config) (*DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = ":memory:"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
	}

	// sqlite serializes writers, a single connection also keeps
	// in memory databases alive
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		sqldb.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enable sqlite foreign keys")
	}

	return &DB{Bun: db, SQL: sqldb, Driver: DriverSQLite}, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse postgres connection string")
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	var pool *pgxpool.Pool
	for i := range attempts {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
			pool = nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "postgres connection cancelled")
		case <-time.After(time.Duration(i+1) * interval):
		}
	}

	if pool == nil {
		return nil, goerrors.Wrap(errors.Join(ErrFailedToOpenDBConnection, err), goerrors.CategoryInternal, "failed to connect to postgres")
	}

	sqldb := stdlib.OpenDBFromPool(pool)
	db := bun.NewDB(sqldb, pgdialect.New())

	return &DB{Bun: db, SQL: sqldb, Driver: DriverPostgres, pool: pool}, nil
}

// Ping verifies the connection is alive
func (d *DB) Ping(ctx context.Context) error {
	return d.SQL.PingContext(ctx)
}

// Close releases the handle and the pool behind it
func (d *DB) Close() error {
	err := d.Bun.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}
