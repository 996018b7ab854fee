// Package migrations holds the schema for every supported SQL dialect and
// applies it with golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitedriver "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

//go:embed postgres/*.sql sqlite/*.sql
var fs embed.FS

const (
	pingInitial     = 200 * time.Millisecond
	pingMaxInterval = 2 * time.Second
	pingMaxElapsed  = 15 * time.Second
)

// Up applies all pending migrations of dialect through a dedicated
// database/sql handle opened with driverName and dsn.
func Up(ctx context.Context, driverName, dsn, dialect string) error {
	src, err := iofs.New(fs, dialect)
	if err != nil {
		return fmt.Errorf("migrate src: %w", err)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("open sql db: %w", err)
	}
	defer db.Close()
	if err := waitReady(ctx, db); err != nil {
		return err
	}
	var driver database.Driver
	switch dialect {
	case Postgres:
		driver, err = pgdriver.WithInstance(db, &pgdriver.Config{})
	case SQLite:
		driver, err = sqlitedriver.WithInstance(db, &sqlitedriver.Config{})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, dialect, driver)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// waitReady retries ping; a fresh container might not accept connections yet.
func waitReady(ctx context.Context, db *sql.DB) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = pingInitial
	exp.MaxInterval = pingMaxInterval
	exp.MaxElapsedTime = pingMaxElapsed

	op := func() error { return db.PingContext(ctx) }
	if err := backoff.Retry(op, backoff.WithContext(exp, ctx)); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	return nil
}
