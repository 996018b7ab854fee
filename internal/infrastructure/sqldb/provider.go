package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ledger-service/internal/application"
)

var _ application.TransactionProvider = (*TxProvider)(nil)
var _ application.Tx = (*Tx)(nil)

var ErrForeignTx = errors.New("sqldb: transaction was not opened by this store")

type TxProvider struct {
	db   *DB
	opts *sql.TxOptions
	skip bool
}

type ProviderOption func(*TxProvider)

func WithTxOptions(opts *sql.TxOptions) ProviderOption {
	return func(p *TxProvider) { p.opts = opts }
}

// WithoutTransaction makes Begin answer NoTransaction.
func WithoutTransaction() ProviderOption {
	return func(p *TxProvider) { p.skip = true }
}

func NewTxProvider(db *DB, opts ...ProviderOption) *TxProvider {
	p := &TxProvider{db: db}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TxProvider) Begin(ctx context.Context) (application.OptionalTx, error) {
	if p.skip {
		return application.NoTransaction{}, nil
	}
	tx, err := p.db.SQL.BeginTx(ctx, p.opts)
	if err != nil {
		return nil, &application.ConnectionError{Err: err}
	}
	return application.Active(&Tx{tx: tx}), nil
}

type Tx struct{ tx *sql.Tx }

func (t *Tx) Commit(context.Context) error { return t.tx.Commit() }

// Rollback treats sql.ErrTxDone as success: database/sql already rolled the
// transaction back when the context given to BeginTx was cancelled.
func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

func (d *DB) Querier(tx application.OptionalTx) (Querier, error) {
	switch t := tx.(type) {
	case application.NoTransaction:
		return d.SQL, nil
	case application.ActiveTransaction:
		raw, err := t.Handle.Unwrap()
		if err != nil {
			return nil, err
		}
		stx, ok := raw.(*Tx)
		if !ok {
			return nil, ErrForeignTx
		}
		return stx.tx, nil
	default:
		return nil, fmt.Errorf("sqldb: unsupported transaction %T", tx)
	}
}
