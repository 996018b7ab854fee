package sqldb

import (
	"context"
	"errors"
	"fmt"

	"ledger-service/internal/application"
	"ledger-service/internal/domain"
	"ledger-service/internal/infrastructure/logx"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
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
	q, err := r.db.Querier(tx)
	if err != nil {
		return err
	}
	stmt, args, err := r.db.builder.
		Insert("accounts").
		Columns("id", "balance").
		Values(a.ID, a.Balance.StringFixed(2)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		logx.WithFields(ctx).Error("sql.exec_failed",
			zap.String("repo", "account"),
			zap.String("operation", "Create"),
			zap.String("dialect", string(r.db.dialect)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (r *AccountRepo) Get(ctx context.Context, tx application.OptionalTx, id string) (domain.Account, error) {
	q, err := r.db.Querier(tx)
	if err != nil {
		return domain.Account{}, err
	}
	return r.get(ctx, q, id, false)
}

// Adjust reads, checks and writes the balance. Inside a transaction the row
// is locked (FOR UPDATE on postgres, IMMEDIATE transactions on sqlite). The
// write only applies over the balance that was read, so without a
// transaction a concurrent change makes it fail with domain.ErrConflict.
func (r *AccountRepo) Adjust(ctx context.Context, tx application.OptionalTx, id string, delta decimal.Decimal) (domain.Account, error) {
	q, err := r.db.Querier(tx)
	if err != nil {
		return domain.Account{}, err
	}
	_, locked := tx.(application.ActiveTransaction)
	acc, err := r.get(ctx, q, id, locked)
	if err != nil {
		return domain.Account{}, err
	}
	next := acc.Balance.Add(delta)
	if next.IsNegative() {
		return domain.Account{}, domain.ErrInsufficientFunds
	}
	stmt, args, err := r.db.builder.
		Update("accounts").
		Set("balance", next.StringFixed(2)).
		Set("updated_at", sq.Expr(r.now())).
		Where(sq.Eq{"id": id, "balance": acc.Balance.StringFixed(2)}).
		ToSql()
	if err != nil {
		return domain.Account{}, err
	}
	res, err := q.ExecContext(ctx, stmt, args...)
	if err != nil {
		logx.WithFields(ctx).Error("sql.exec_failed",
			zap.String("repo", "account"),
			zap.String("operation", "Adjust"),
			zap.String("id", id),
			zap.Error(err),
		)
		return domain.Account{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Account{}, err
	} else if n == 0 {
		return domain.Account{}, domain.ErrConflict
	}
	return domain.Account{ID: id, Balance: next}, nil
}

func (r *AccountRepo) get(ctx context.Context, q Querier, id string, forUpdate bool) (domain.Account, error) {
	b := r.db.builder.Select("id", "balance").From("accounts").Where(sq.Eq{"id": id})
	if forUpdate && r.db.dialect == DialectPostgres {
		b = b.Suffix("FOR UPDATE")
	}
	stmt, args, err := b.ToSql()
	if err != nil {
		return domain.Account{}, err
	}
	var row accountRow
	if err := sqlscan.Get(ctx, q, &row, stmt, args...); err != nil {
		if sqlscan.NotFound(err) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, err
	}
	return row.toDomain()
}

func (r *AccountRepo) now() string {
	if r.db.dialect == DialectPostgres {
		return "NOW()"
	}
	return "strftime('%Y-%m-%dT%H:%M:%fZ', 'now')"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
