// Package migrations holds the account schema and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var schema embed.FS

const dir = "sql"

// DefaultTable tracks applied versions
const DefaultTable = "accounts_schema_version"

// Logger is the subset of the accounts logger goose output is routed to
type Logger interface {
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// goose keeps its configuration in package globals
var mu sync.Mutex

// Dialect maps a database driver name to the goose dialect
func Dialect(driver string) (string, error) {
	switch driver {
	case "sqlite", "sqlite3", "sqliteshim":
		return "sqlite3", nil
	case "postgres", "pg", "pgx":
		return "postgres", nil
	default:
		return "", goerrors.New(fmt.Sprintf("unsupported database driver %q", driver), goerrors.CategoryBadInput).
			WithTextCode("UNSUPPORTED_DRIVER")
	}
}

// Migrate applies every pending migration to db
func Migrate(ctx context.Context, db *sql.DB, driver string, logger Logger) error {
	dialect, err := Dialect(driver)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(schema)
	defer goose.SetBaseFS(nil)

	goose.SetTableName(DefaultTable)
	if logger != nil {
		goose.SetLogger(&gooseLogger{log: logger})
	}

	if err := goose.SetDialect(dialect); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	return nil
}

// Version returns the current schema version
func Version(ctx context.Context, db *sql.DB, driver string) (int64, error) {
	dialect, err := Dialect(driver)
	if err != nil {
		return 0, err
	}

	mu.Lock()
	defer mu.Unlock()

	goose.SetTableName(DefaultTable)
	if err := goose.SetDialect(dialect); err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set migration dialect")
	}

	return goose.GetDBVersionContext(ctx, db)
}

type gooseLogger struct {
	log Logger
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (l *gooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}
