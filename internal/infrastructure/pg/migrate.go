package pg

import (
	"context"

	"ledger-service/internal/infrastructure/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// RunMigrations applies the postgres schema over database/sql using the
// pool's connection string.
func RunMigrations(ctx context.Context, db *DB) error {
	return migrations.Up(ctx, "pgx", db.Pool.Config().ConnString(), migrations.Postgres)
}
