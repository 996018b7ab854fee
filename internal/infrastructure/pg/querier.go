package pg

import (
	"context"
	"errors"
	"fmt"

	"ledger-service/internal/application"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrForeignTx = errors.New("pg: transaction was not opened by this store")

// Querier is the query surface shared by the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier picks the transaction's connection for an ActiveTransaction and
// the pool otherwise.
func (d *DB) Querier(tx application.OptionalTx) (Querier, error) {
	switch t := tx.(type) {
	case application.NoTransaction:
		return d.Pool, nil
	case application.ActiveTransaction:
		raw, err := t.Handle.Unwrap()
		if err != nil {
			return nil, err
		}
		ptx, ok := raw.(*Tx)
		if !ok {
			return nil, ErrForeignTx
		}
		return ptx.tx, nil
	default:
		return nil, fmt.Errorf("pg: unsupported transaction %T", tx)
	}
}

func txLabel(tx application.OptionalTx) string {
	if _, ok := tx.(application.ActiveTransaction); ok {
		return "active"
	}
	return "none"
}
