package pg

import (
	"context"
	"errors"
	"fmt"

	"ledger-service/internal/application"
	"ledger-service/internal/domain"
	"ledger-service/internal/infrastructure/logx"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

var _ application.AccountRepo = (*AccountRepo)(nil)

type AccountRepo struct{ db *DB }

func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

type accountRow struct {
	ID      string `db:"id"`
	Balance string `db:"balance"`
}

func (r accountRow) toDomain() (domain.Account, error) {
	b, err := decimal.NewFromString(r.Balance)
	if err != nil {
		return domain.Account{}, fmt.Errorf("parse balance of %s: %w", r.ID, err)
	}
	return domain.Account{ID: r.ID, Balance: b}, nil
}

func (r *AccountRepo) Create(ctx context.Context, tx application.OptionalTx, a domain.Account) error {
	const ins = `INSERT INTO accounts(id, balance) VALUES ($1, $2::numeric)`
	log := logx.WithFields(ctx).With(
		zap.String("repo", "account"),
		zap.String("operation", "Create"),
		zap.String("tx", txLabel(tx)),
		zap.String("id", a.ID),
	)
	q, err := r.db.Querier(tx)
	if err != nil {
		return err
	}
	log.Debug("sql.exec_start")
	if _, err := q.Exec(ctx, ins, a.ID, a.Balance.String()); err != nil {
		if pgCode(err) == pgUniqueViolation {
			log.Info("sql.exec_conflict")
			return domain.ErrConflict
		}
		log.Error("sql.exec_failed", zap.Error(err))
		return err
	}
	log.Debug("sql.exec_success")
	return nil
}

func (r *AccountRepo) Get(ctx context.Context, tx application.OptionalTx, id string) (domain.Account, error) {
	const sel = `SELECT id, balance::text AS balance FROM accounts WHERE id = $1`
	q, err := r.db.Querier(tx)
	if err != nil {
		return domain.Account{}, err
	}
	var row accountRow
	if err := pgxscan.Get(ctx, q, &row, sel, id); err != nil {
		if pgxscan.NotFound(err) {
			return domain.Account{}, domain.ErrNotFound
		}
		logx.WithFields(ctx).Error("sql.query_failed",
			zap.String("repo", "account"),
			zap.String("operation", "Get"),
			zap.String("id", id),
			zap.Error(err),
		)
		return domain.Account{}, err
	}
	return row.toDomain()
}

// Adjust relies on the non-negative balance check to reject overdrafts.
// The failed statement aborts the transaction; the unit of work rolls it back.
func (r *AccountRepo) Adjust(ctx context.Context, tx application.OptionalTx, id string, delta decimal.Decimal) (domain.Account, error) {
	const up = `
        UPDATE accounts
        SET balance = balance + $2::numeric, updated_at = NOW()
        WHERE id = $1
        RETURNING id, balance::text AS balance`
	log := logx.WithFields(ctx).With(
		zap.String("repo", "account"),
		zap.String("operation", "Adjust"),
		zap.String("tx", txLabel(tx)),
		zap.String("id", id),
		zap.String("delta", delta.String()),
	)
	q, err := r.db.Querier(tx)
	if err != nil {
		return domain.Account{}, err
	}
	log.Debug("sql.exec_start")
	var row accountRow
	if err := pgxscan.Get(ctx, q, &row, up, id, delta.String()); err != nil {
		switch {
		case pgxscan.NotFound(err):
			log.Info("sql.exec_no_rows")
			return domain.Account{}, domain.ErrNotFound
		case pgCode(err) == pgCheckViolation:
			log.Info("sql.exec_insufficient_funds")
			return domain.Account{}, domain.ErrInsufficientFunds
		}
		log.Error("sql.exec_failed", zap.Error(err))
		return domain.Account{}, err
	}
	log.Debug("sql.exec_success", zap.String("balance", row.Balance))
	return row.toDomain()
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
