// Package database opens the SQL connection pool for the configured driver
// and applies the embedded schema migrations.
package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"feria/internal/platform/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// sqlx driver names registered by lib/pq and modernc.org/sqlite.
const (
	driverNamePostgres = "postgres"
	driverNameSQLite   = "sqlite"
)

// Open connects to the configured SQL database and verifies the connection.
func Open(ctx context.Context, cfg config.Database) (*sqlx.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sqlx.ConnectContext(ctx, driverNamePostgres, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		return db, nil
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("driver %q has no SQL database", cfg.Driver)
	}
}

// OpenSQLite opens a SQLite database file with WAL journaling and a busy timeout.
// A single connection serializes writers so unique checks never race.
func OpenSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.ConnectContext(ctx, driverNameSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate applies every pending migration for the connection's dialect.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	dialect, dir, err := dialectFor(db.DriverName())
	if err != nil {
		return err
	}
	migrations, err := fs.Sub(embedMigrations, dir)
	if err != nil {
		return fmt.Errorf("locating migrations: %w", err)
	}
	provider, err := goose.NewProvider(dialect, db.DB, migrations)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func dialectFor(driverName string) (goose.Dialect, string, error) {
	switch driverName {
	case driverNamePostgres:
		return goose.DialectPostgres, "migrations/postgres", nil
	case driverNameSQLite:
		return goose.DialectSQLite3, "migrations/sqlite", nil
	default:
		return "", "", fmt.Errorf("no migrations for driver %q", driverName)
	}
}
