package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledger-service/internal/application"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ledger-service/pg")

var _ application.TransactionProvider = (*TxProvider)(nil)
var _ application.Tx = (*Tx)(nil)

// TxProvider opens pgx transactions on the pool, or none at all when
// configured WithoutTransaction.
type TxProvider struct {
	db               *DB
	opts             pgx.TxOptions
	skip             bool
	statementTimeout time.Duration
}

type ProviderOption func(*TxProvider)

func WithIsolation(level pgx.TxIsoLevel) ProviderOption {
	return func(p *TxProvider) { p.opts.IsoLevel = level }
}

func ReadOnly() ProviderOption {
	return func(p *TxProvider) { p.opts.AccessMode = pgx.ReadOnly }
}

// WithoutTransaction makes Begin answer NoTransaction; operations then run
// on pooled connections.
func WithoutTransaction() ProviderOption {
	return func(p *TxProvider) { p.skip = true }
}

// WithStatementTimeout sets statement_timeout locally for every transaction.
func WithStatementTimeout(d time.Duration) ProviderOption {
	return func(p *TxProvider) { p.statementTimeout = d }
}

func NewTxProvider(db *DB, opts ...ProviderOption) *TxProvider {
	p := &TxProvider{db: db, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TxProvider) Begin(ctx context.Context) (application.OptionalTx, error) {
	if p.skip {
		return application.NoTransaction{}, nil
	}
	ctx, span := tracer.Start(ctx, "tx.begin", trace.WithAttributes(
		attribute.String("tx.isolation", string(p.opts.IsoLevel)),
		attribute.String("tx.access_mode", string(p.opts.AccessMode)),
	))
	defer span.End()

	tx, err := p.db.Pool.BeginTx(ctx, p.opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &application.ConnectionError{Err: err}
	}
	if p.statementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", p.statementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			span.SetStatus(codes.Error, err.Error())
			return nil, &application.ConnectionError{Err: fmt.Errorf("set statement_timeout: %w", err)}
		}
	}
	return application.Active(&Tx{tx: tx}), nil
}

// Tx is a pgx transaction as seen by the unit of work.
type Tx struct{ tx pgx.Tx }

func (t *Tx) Commit(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tx.commit")
	defer span.End()
	if err := t.tx.Commit(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "tx.rollback")
	defer span.End()
	if err := t.tx.Rollback(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// ParseIsolation maps names such as "read committed" or "serializable".
func ParseIsolation(s string) (pgx.TxIsoLevel, error) {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " "))) {
	case "", "read committed":
		return pgx.ReadCommitted, nil
	case "repeatable read":
		return pgx.RepeatableRead, nil
	case "serializable":
		return pgx.Serializable, nil
	case "read uncommitted":
		return pgx.ReadUncommitted, nil
	default:
		return "", fmt.Errorf("unknown isolation level %q", s)
	}
}
