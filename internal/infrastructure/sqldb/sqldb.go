// Package sqldb implements the ledger store on database/sql, with SQLite
// (modernc.org/sqlite) and PostgreSQL (lib/pq) drivers.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	infraconfig "ledger-service/internal/infrastructure/config"
	"ledger-service/internal/infrastructure/migrations"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder style and locking behaviour.
type Dialect string

const (
	DialectSQLite   Dialect = migrations.SQLite
	DialectPostgres Dialect = migrations.Postgres
)

type DB struct {
	SQL     *sql.DB
	dialect Dialect
	driver  string
	dsn     string
	builder sq.StatementBuilderType
}

// Open connects with driver "sqlite" (dsn is a file path) or "postgres".
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var dialect Dialect
	switch driver {
	case "sqlite":
		dialect = DialectSQLite
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db directory: %w", err)
			}
		}
		dsn = sqliteDSN(dsn)
	case "postgres":
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(infraconfig.DefaultSQLMaxOpenConns)
	db.SetMaxIdleConns(infraconfig.DefaultSQLMaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	var placeholders sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		placeholders = sq.Dollar
	}
	return &DB{
		SQL:     db,
		dialect: dialect,
		driver:  driver,
		dsn:     dsn,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholders),
	}, nil
}

// sqliteDSN enables WAL, a busy timeout on every pooled connection and
// IMMEDIATE transactions so writers queue at BEGIN instead of failing on
// lock upgrade.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate",
		path, sep, infraconfig.DefaultSQLiteBusyMS)
}

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, d.driver, d.dsn, string(d.dialect))
}

func (d *DB) Close() error                   { return d.SQL.Close() }
func (d *DB) Ping(ctx context.Context) error { return d.SQL.PingContext(ctx) }
